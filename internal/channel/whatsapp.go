package channel

import (
	"context"
	"errors"
	"log"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// messageCreator is the slice of the Twilio REST API used for sends.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// WhatsAppSender sends WhatsApp messages through the Twilio Messages API.
// Credentials: Token is the auth token, Extra carries account_sid and
// from_whatsapp.
type WhatsAppSender struct {
	newClient func(accountSID, authToken string) messageCreator
}

// NewWhatsAppSender creates a Twilio-backed WhatsApp sender.
func NewWhatsAppSender() *WhatsAppSender {
	return &WhatsAppSender{newClient: func(accountSID, authToken string) messageCreator {
		c := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		return c.Api
	}}
}

// Channel implements Sender.
func (s *WhatsAppSender) Channel() domain.Channel { return domain.ChannelWhatsApp }

// Send delivers one WhatsApp message.
func (s *WhatsAppSender) Send(ctx context.Context, msg Message, creds domain.Credentials) (Result, error) {
	if err := ValidateDestination(domain.ChannelWhatsApp, msg.Destination); err != nil {
		return Failed("%v", err), nil
	}
	accountSID := creds.ExtraString("account_sid")
	from := creds.ExtraString("from_whatsapp")
	if accountSID == "" || from == "" || creds.Token == "" {
		return Failed("WhatsApp integration missing account_sid, from_whatsapp or token"), nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + msg.Destination)
	params.SetFrom("whatsapp:" + from)
	params.SetBody(msg.Body)
	if msg.MediaURL != "" {
		params.SetMediaUrl([]string{msg.MediaURL})
	}

	resp, err := s.newClient(accountSID, creds.Token).CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && !isRetryableStatus(restErr.Status) {
			log.Printf("[WhatsApp] Rejected send to %s: %d %s", logger.RedactIdentifier(msg.Destination), restErr.Code, restErr.Message)
			return Failed("twilio error %d: %s", restErr.Code, restErr.Message), nil
		}
		return Result{}, err
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	return Result{Success: true, ProviderMessageID: sid}, nil
}
