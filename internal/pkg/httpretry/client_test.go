package httpretry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_RetriesRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rc := NewRetryClient(nil, 3)
	rc.SetBackoff(time.Millisecond, 5*time.Millisecond)

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"a":1}`))
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDo_DoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	rc := NewRetryClient(nil, 3)
	rc.SetBackoff(time.Millisecond, time.Millisecond)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDo_ReturnsLastRetryableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rc := NewRetryClient(nil, 1)
	rc.SetBackoff(time.Millisecond, time.Millisecond)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestDo_BodyWithoutGetBodyIsSentOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rc := NewRetryClient(nil, 3)
	rc.SetBackoff(time.Millisecond, time.Millisecond)

	req, _ := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("x")))
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		status int
		header string
		want   time.Duration
		ok     bool
	}{
		{"seconds", http.StatusTooManyRequests, "7", 7 * time.Second, true},
		{"http date", http.StatusServiceUnavailable, now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{"past date", http.StatusTooManyRequests, now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"missing", http.StatusTooManyRequests, "", 0, false},
		{"garbage", http.StatusTooManyRequests, "soon", 0, false},
		{"ignored on 500", http.StatusInternalServerError, "7", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			got, ok := retryAfter(resp, now)
			if ok != tt.ok || got != tt.want {
				t.Errorf("retryAfter = (%s, %v), want (%s, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBackoff_StaysWithinBounds(t *testing.T) {
	rc := NewRetryClient(nil, 3)
	rc.SetBackoff(10*time.Millisecond, 50*time.Millisecond)
	rc.jitter = func(max time.Duration) time.Duration { return max }

	if got := rc.backoff(1); got != 10*time.Millisecond {
		t.Errorf("backoff(1) = %s", got)
	}
	if got := rc.backoff(3); got != 40*time.Millisecond {
		t.Errorf("backoff(3) = %s", got)
	}
	if got := rc.backoff(10); got != 50*time.Millisecond {
		t.Errorf("backoff(10) = %s", got)
	}

	rc.jitter = func(time.Duration) time.Duration { return 0 }
	if got := rc.backoff(2); got != 10*time.Millisecond {
		t.Errorf("backoff floor = %s", got)
	}
}
