package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httpretry"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// SESAPI is the slice of the SES v2 client used for sends.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailSender sends email through the SendGrid v3 Mail Send API, or through
// SES when the integration sets extra.transport = "ses".
//
// Credentials: Token is the SendGrid API key. Extra may carry from_email,
// from_name, subject and transport.
type EmailSender struct {
	baseURL     string
	client      httpretry.HTTPDoer
	ses         SESAPI
	defaultFrom string
	defaultName string
}

// EmailOptions configures an EmailSender.
type EmailOptions struct {
	BaseURL   string
	Client    httpretry.HTTPDoer
	SES       SESAPI
	FromEmail string
	FromName  string
}

// NewEmailSender creates an email sender.
func NewEmailSender(opts EmailOptions) *EmailSender {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.sendgrid.com/v3"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: DefaultTimeout}
	}
	return &EmailSender{
		baseURL:     opts.BaseURL,
		client:      opts.Client,
		ses:         opts.SES,
		defaultFrom: opts.FromEmail,
		defaultName: opts.FromName,
	}
}

// Channel implements Sender.
func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

// Send delivers one email.
func (s *EmailSender) Send(ctx context.Context, msg Message, creds domain.Credentials) (Result, error) {
	if err := ValidateDestination(domain.ChannelEmail, msg.Destination); err != nil {
		return Failed("%v", err), nil
	}
	subject := msg.Subject
	if subject == "" {
		subject = creds.ExtraString("subject")
	}
	fromEmail := creds.ExtraString("from_email")
	if fromEmail == "" {
		fromEmail = s.defaultFrom
	}
	fromName := creds.ExtraString("from_name")
	if fromName == "" {
		fromName = s.defaultName
	}
	if fromEmail == "" {
		return Failed("email integration has no from_email"), nil
	}

	if creds.ExtraString("transport") == "ses" {
		return s.sendSES(ctx, msg, subject, fromEmail, fromName)
	}
	if creds.Token == "" {
		return Failed("SendGrid API key not configured"), nil
	}
	return s.sendGrid(ctx, msg, creds.Token, subject, fromEmail, fromName)
}

func (s *EmailSender) sendGrid(ctx context.Context, msg Message, apiKey, subject, fromEmail, fromName string) (Result, error) {
	contentType := "text/plain"
	if LooksLikeHTML(msg.Body) {
		contentType = "text/html"
	}
	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": msg.Destination}}},
		},
		"from":    map[string]string{"email": fromEmail, "name": fromName},
		"subject": subject,
		"content": []map[string]string{{"type": contentType, "value": msg.Body}},
	}
	if len(msg.Headers) > 0 {
		payload["headers"] = msg.Headers
	}
	if len(msg.Attachments) > 0 {
		atts := make([]map[string]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			atts = append(atts, map[string]string{
				"content":     base64.StdEncoding.EncodeToString(a.Content),
				"type":        a.ContentType,
				"filename":    a.Filename,
				"disposition": "attachment",
			})
		}
		payload["attachments"] = atts
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return Failed("marshal: %v", err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/mail/send", bytes.NewReader(jsonData))
	if err != nil {
		return Failed("create request: %v", err), nil
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if isRetryableStatus(resp.StatusCode) {
		return Result{}, fmt.Errorf("SendGrid error %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return Failed("SendGrid error %d: %s", resp.StatusCode, string(body)), nil
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.New().String()
	}

	log.Printf("[SendGrid] Sent to %s (id: %s)", logger.RedactEmail(msg.Destination), messageID)
	return Result{Success: true, ProviderMessageID: messageID}, nil
}

func (s *EmailSender) sendSES(ctx context.Context, msg Message, subject, fromEmail, fromName string) (Result, error) {
	if s.ses == nil {
		return Failed("SES client not initialized - check AWS configuration"), nil
	}
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Destination}},
	}
	if len(msg.Attachments) > 0 || len(msg.Headers) > 0 {
		raw, err := buildMIME(from, msg.Destination, subject, msg)
		if err != nil {
			return Failed("build MIME: %v", err), nil
		}
		input.Content = &types.EmailContent{Raw: &types.RawMessage{Data: raw}}
	} else {
		body := &types.Body{}
		if LooksLikeHTML(msg.Body) {
			body.Html = &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
		} else {
			body.Text = &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
		}
		input.Content = &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		}
	}

	out, err := s.ses.SendEmail(ctx, input)
	if err != nil {
		log.Printf("[SES] Failed to send to %s: %v", logger.RedactEmail(msg.Destination), err)
		return Result{}, err
	}
	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.Destination), messageID)
	return Result{Success: true, ProviderMessageID: messageID}, nil
}
