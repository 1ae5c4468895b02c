package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httpretry"
)

func TestInstagramSend(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" || r.URL.Query().Get("access_token") != "ig-token" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		var b map[string]any
		_ = json.NewDecoder(r.Body).Decode(&b)
		bodies = append(bodies, b)
		w.Write([]byte(`{"recipient_id":"ig-user","message_id":"mid.1"}`))
	}))
	defer srv.Close()

	s := NewInstagramSender(srv.URL, http.DefaultClient, 100)
	res, err := s.Send(context.Background(), Message{Destination: "ig-user", Body: "hello", MediaURL: "https://cdn/x.jpg"}, domain.Credentials{Token: "ig-token"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.ProviderMessageID != "mid.1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected attachment + text calls, got %d", len(bodies))
	}
	att := bodies[0]["message"].(map[string]any)["attachment"].(map[string]any)
	if att["type"] != "image" {
		t.Errorf("attachment type = %v", att["type"])
	}
	if bodies[1]["message"].(map[string]any)["text"] != "hello" {
		t.Errorf("text body = %v", bodies[1])
	}
}

func TestInstagramSend_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
	}{
		{"graph error", http.StatusBadRequest, `{"error":{"message":"No matching user","code":100}}`, false},
		{"server error", http.StatusInternalServerError, `oops`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			rc := httpretry.NewRetryClient(http.DefaultClient, 1)
			rc.SetBackoff(time.Millisecond, time.Millisecond)
			s := NewInstagramSender(srv.URL, rc, 100)

			res, err := s.Send(context.Background(), Message{Destination: "ig-user", Body: "x"}, domain.Credentials{Token: "t"})
			if tt.wantTransient {
				if err == nil {
					t.Fatal("expected transient error")
				}
				return
			}
			if err != nil || res.Success {
				t.Fatalf("expected permanent failure, got %+v, %v", res, err)
			}
		})
	}
}
