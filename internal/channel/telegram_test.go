package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

type telegramStub struct {
	mu      sync.Mutex
	methods []string
	delay   int // number of calls to stall past the client timeout
	reply   string
	status  int
}

func (s *telegramStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/botTOKEN/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		method := strings.TrimPrefix(r.URL.Path, "/botTOKEN/")
		s.mu.Lock()
		s.methods = append(s.methods, method)
		stall := s.delay > 0
		if stall {
			s.delay--
		}
		s.mu.Unlock()
		if stall {
			time.Sleep(150 * time.Millisecond)
		}
		status := s.status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		reply := s.reply
		if reply == "" {
			reply = okReplies[method]
		}
		w.Write([]byte(reply))
	}
}

var okReplies = map[string]string{
	"sendMessage":  `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":12345,"type":"private"},"text":"x"}}`,
	"sendPhoto":    `{"ok":true,"result":{"message_id":78,"date":0,"chat":{"id":12345,"type":"private"},"photo":[{"file_id":"p1","file_unique_id":"u1","width":10,"height":10}]}}`,
	"sendDocument": `{"ok":true,"result":{"message_id":79,"date":0,"chat":{"id":12345,"type":"private"},"document":{"file_id":"d1","file_unique_id":"u2","file_name":"report.pdf"}}}`,
}

func newTestTelegram(t *testing.T, stub *telegramStub) *TelegramSender {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	s := NewTelegramSender(srv.URL, 1000)
	s.client.Timeout = 100 * time.Millisecond
	s.backoff = time.Millisecond
	return s
}

func TestTelegramSend_Text(t *testing.T) {
	stub := &telegramStub{}
	s := newTestTelegram(t, stub)

	res, err := s.Send(context.Background(), Message{Destination: "12345", Body: "hello"}, domain.Credentials{Token: "TOKEN"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.ProviderMessageID != "12345:77" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(stub.methods) != 1 || stub.methods[0] != "sendMessage" {
		t.Errorf("methods = %v", stub.methods)
	}
}

func TestTelegramSend_ProviderIDScopedByChat(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"chat from reply", `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":99999,"type":"private"},"text":"x"}}`, "99999:77"},
		{"no chat in reply", `{"ok":true,"result":{"message_id":77,"date":0,"text":"x"}}`, "55555:77"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestTelegram(t, &telegramStub{reply: tt.reply})
			res, err := s.Send(context.Background(), Message{Destination: "55555", Body: "hi"}, domain.Credentials{Token: "TOKEN"})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if res.ProviderMessageID != tt.want {
				t.Errorf("provider id = %q, want %q", res.ProviderMessageID, tt.want)
			}
		})
	}
}

func TestTelegramSend_MediaByMIME(t *testing.T) {
	tests := []struct {
		url    string
		method string
	}{
		{"https://cdn.example.com/pic.png", "sendPhoto"},
		{"https://cdn.example.com/report.pdf?sig=1", "sendDocument"},
	}
	for _, tt := range tests {
		stub := &telegramStub{}
		s := newTestTelegram(t, stub)
		_, err := s.Send(context.Background(), Message{Destination: "12345", Body: "cap", MediaURL: tt.url}, domain.Credentials{Token: "TOKEN"})
		if err != nil {
			t.Fatalf("Send(%s): %v", tt.url, err)
		}
		if len(stub.methods) != 1 || stub.methods[0] != tt.method {
			t.Errorf("%s: methods = %v, want %s", tt.url, stub.methods, tt.method)
		}
	}
}

func TestTelegramSend_RetriesTimeoutLocally(t *testing.T) {
	stub := &telegramStub{delay: 2}
	s := newTestTelegram(t, stub)

	res, err := s.Send(context.Background(), Message{Destination: "12345", Body: "x"}, domain.Credentials{Token: "TOKEN"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success after local retries, got %+v", res)
	}
	if len(stub.methods) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(stub.methods))
	}
}

func TestTelegramSend_TimeoutExhaustedIsTransient(t *testing.T) {
	stub := &telegramStub{delay: 3}
	s := newTestTelegram(t, stub)

	_, err := s.Send(context.Background(), Message{Destination: "12345", Body: "x"}, domain.Credentials{Token: "TOKEN"})
	if err == nil {
		t.Fatal("expected transient error after exhausting local retries")
	}
}

func TestTelegramSend_ChatNotFoundIsPermanent(t *testing.T) {
	stub := &telegramStub{
		status: http.StatusBadRequest,
		reply:  `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
	}
	s := newTestTelegram(t, stub)

	res, err := s.Send(context.Background(), Message{Destination: "12345", Body: "x"}, domain.Credentials{Token: "TOKEN"})
	if err != nil {
		t.Fatalf("expected permanent failure, got error %v", err)
	}
	if res.Success {
		t.Error("expected failure result")
	}
}

func TestTelegramSend_NonNumericChatMakesNoCall(t *testing.T) {
	stub := &telegramStub{}
	s := newTestTelegram(t, stub)

	res, err := s.Send(context.Background(), Message{Destination: "@someone", Body: "x"}, domain.Credentials{Token: "TOKEN"})
	if err != nil || res.Success {
		t.Fatalf("expected validation failure, got %+v, %v", res, err)
	}
	if len(stub.methods) != 0 {
		t.Errorf("provider called %d times", len(stub.methods))
	}
}
