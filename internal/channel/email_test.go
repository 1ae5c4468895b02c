package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

func sendgridServer(t *testing.T, status int, capture *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sg-key" {
			t.Errorf("Authorization = %q", got)
		}
		if capture != nil {
			_ = json.NewDecoder(r.Body).Decode(capture)
		}
		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

var sgCreds = domain.Credentials{Token: "sg-key", Extra: map[string]any{"from_email": "team@example.com", "from_name": "Team"}}

func TestEmailSend_SendGridSuccess(t *testing.T) {
	var body map[string]any
	srv := sendgridServer(t, http.StatusAccepted, &body)
	s := NewEmailSender(EmailOptions{BaseURL: srv.URL})

	res, err := s.Send(context.Background(), Message{
		Destination: "jane@example.com",
		Subject:     "Hello",
		Body:        "<p>Hi Jane</p>",
		Headers:     map[string]string{"List-Unsubscribe": "<https://x/unsubscribe>"},
		Attachments: []File{{Filename: "a.pdf", ContentType: "application/pdf", Content: []byte("pdf")}},
	}, sgCreds)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.ProviderMessageID != "sg-msg-1" {
		t.Fatalf("unexpected result %+v", res)
	}

	content := body["content"].([]any)[0].(map[string]any)
	if content["type"] != "text/html" {
		t.Errorf("content type = %v", content["type"])
	}
	if body["subject"] != "Hello" {
		t.Errorf("subject = %v", body["subject"])
	}
	headers := body["headers"].(map[string]any)
	if headers["List-Unsubscribe"] != "<https://x/unsubscribe>" {
		t.Errorf("headers = %v", headers)
	}
	atts := body["attachments"].([]any)
	if len(atts) != 1 || atts[0].(map[string]any)["filename"] != "a.pdf" {
		t.Errorf("attachments = %v", atts)
	}
}

func TestEmailSend_PlainTextBody(t *testing.T) {
	var body map[string]any
	srv := sendgridServer(t, http.StatusAccepted, &body)
	s := NewEmailSender(EmailOptions{BaseURL: srv.URL})

	_, err := s.Send(context.Background(), Message{Destination: "jane@example.com", Body: "plain hello"}, sgCreds)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	content := body["content"].([]any)[0].(map[string]any)
	if content["type"] != "text/plain" {
		t.Errorf("content type = %v", content["type"])
	}
}

func TestEmailSend_StatusClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		srv := sendgridServer(t, tt.status, nil)
		s := NewEmailSender(EmailOptions{BaseURL: srv.URL})
		res, err := s.Send(context.Background(), Message{Destination: "jane@example.com", Body: "x"}, sgCreds)
		if tt.wantTransient {
			if err == nil {
				t.Errorf("status %d: expected transient error", tt.status)
			}
			continue
		}
		if err != nil || res.Success {
			t.Errorf("status %d: expected permanent failure, got %+v, %v", tt.status, res, err)
		}
	}
}

func TestEmailSend_InvalidAddressMakesNoCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()
	s := NewEmailSender(EmailOptions{BaseURL: srv.URL})

	res, err := s.Send(context.Background(), Message{Destination: "not-an-email", Body: "x"}, sgCreds)
	if err != nil || res.Success {
		t.Fatalf("expected validation failure, got %+v, %v", res, err)
	}
	if called {
		t.Error("provider was called for an invalid address")
	}
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestEmailSend_SESTransport(t *testing.T) {
	ses := &fakeSES{}
	s := NewEmailSender(EmailOptions{SES: ses, FromEmail: "noreply@example.com"})
	creds := domain.Credentials{Extra: map[string]any{"transport": "ses"}}

	res, err := s.Send(context.Background(), Message{Destination: "jane@example.com", Subject: "S", Body: "text"}, creds)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.ProviderMessageID != "ses-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if ses.in.Content.Simple == nil || ses.in.Content.Simple.Body.Text == nil {
		t.Error("expected simple text content")
	}

	_, err = s.Send(context.Background(), Message{
		Destination: "jane@example.com",
		Body:        "<p>x</p>",
		Attachments: []File{{Filename: "a.png", ContentType: "image/png", Content: []byte{1, 2}}},
	}, creds)
	if err != nil {
		t.Fatalf("Send raw: %v", err)
	}
	raw := string(ses.in.Content.Raw.Data)
	if !strings.Contains(raw, "multipart/mixed") || !strings.Contains(raw, `filename=a.png`) {
		t.Errorf("raw message missing parts:\n%s", raw)
	}

	ses.err = errors.New("throttled")
	if _, err := s.Send(context.Background(), Message{Destination: "jane@example.com", Body: "x"}, creds); err == nil {
		t.Error("expected SES error to surface as transient")
	}
}
