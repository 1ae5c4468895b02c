package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httpretry"
)

// InstagramSender sends direct messages through the Graph API Send API.
// Credentials: Token is the page access token.
type InstagramSender struct {
	graphURL string
	client   httpretry.HTTPDoer
	limiter  *rate.Limiter
}

// NewInstagramSender creates an Instagram sender. client is usually a
// *httpretry.RetryClient.
func NewInstagramSender(graphURL string, client httpretry.HTTPDoer, ratePerSec float64) *InstagramSender {
	if graphURL == "" {
		graphURL = "https://graph.facebook.com/v19.0"
	}
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: DefaultTimeout}, 2)
	}
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &InstagramSender{
		graphURL: strings.TrimRight(graphURL, "/"),
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Channel implements Sender.
func (s *InstagramSender) Channel() domain.Channel { return domain.ChannelInstagram }

type igSendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
	Error       *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers one Instagram message. Media is sent as a separate
// attachment message after the text.
func (s *InstagramSender) Send(ctx context.Context, msg Message, creds domain.Credentials) (Result, error) {
	if err := ValidateDestination(domain.ChannelInstagram, msg.Destination); err != nil {
		return Failed("%v", err), nil
	}
	if creds.Token == "" {
		return Failed("Instagram access token missing"), nil
	}

	var payload map[string]any
	recipient := map[string]string{"id": strings.TrimSpace(msg.Destination)}
	if msg.MediaURL != "" {
		kind := "file"
		if strings.HasPrefix(MediaType(msg.MediaURL), "image/") {
			kind = "image"
		}
		payload = map[string]any{
			"recipient": recipient,
			"message": map[string]any{
				"attachment": map[string]any{"type": kind, "payload": map[string]string{"url": msg.MediaURL}},
			},
		}
		if res, err := s.post(ctx, payload, creds.Token); err != nil || !res.Success || msg.Body == "" {
			return res, err
		}
	}
	payload = map[string]any{
		"recipient": recipient,
		"message":   map[string]string{"text": msg.Body},
	}
	return s.post(ctx, payload, creds.Token)
}

func (s *InstagramSender) post(ctx context.Context, payload map[string]any, token string) (Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Failed("marshal: %v", err), nil
	}
	endpoint := s.graphURL + "/me/messages?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return Failed("create request: %v", err), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if isRetryableStatus(resp.StatusCode) {
		return Result{}, fmt.Errorf("instagram error %d: %s", resp.StatusCode, string(body))
	}
	var out igSendResponse
	_ = json.Unmarshal(body, &out)
	if resp.StatusCode >= 400 || out.Error != nil {
		if out.Error != nil {
			return Failed("instagram error %d: %s", out.Error.Code, out.Error.Message), nil
		}
		return Failed("instagram error %d: %s", resp.StatusCode, string(body)), nil
	}
	return Result{Success: true, ProviderMessageID: out.MessageID}, nil
}
