// Package httpretry wraps provider HTTP calls with bounded retries.
//
// Transport errors and 429/5xx answers are retried with capped exponential
// backoff and full jitter. A Retry-After header on a 429 or 503 overrides
// the computed delay, still capped at the maximum.
package httpretry

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// HTTPDoer executes HTTP requests. *http.Client and *RetryClient both
// satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryClient retries transient provider failures.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     func(max time.Duration) time.Duration
}

// NewRetryClient wraps client. A nil client gets a 10s-timeout
// http.Client; maxRetries <= 0 means 3 retries after the first attempt.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
		jitter:     func(max time.Duration) time.Duration { return time.Duration(rand.Int63n(int64(max) + 1)) },
	}
}

// SetBackoff overrides the base and maximum delays.
func (rc *RetryClient) SetBackoff(base, max time.Duration) {
	rc.baseDelay = base
	rc.maxDelay = max
}

// Do sends req, retrying transient failures. The last retryable response
// is returned as-is so callers can read the provider's error body. A
// request whose body cannot be replayed (no GetBody) is sent once.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	attempts := rc.maxRetries + 1
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}
			logger.Warn("provider request retry", "host", req.URL.Host, "path", req.URL.Path,
				"attempt", attempt, "max", rc.maxRetries, "wait", wait.String(), "error", lastErr)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, errors.Join(ctx.Err(), lastErr)
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			wait = rc.backoff(attempt + 1)
			continue
		}
		if !retryableStatus[resp.StatusCode] || attempt == attempts-1 {
			return resp, nil
		}

		wait = rc.backoff(attempt + 1)
		if d, ok := retryAfter(resp, time.Now()); ok {
			wait = min(d, rc.maxDelay)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}
	return nil, lastErr
}

// backoff returns a jittered delay in [baseDelay, min(maxDelay, baseDelay*2^(n-1))].
func (rc *RetryClient) backoff(n int) time.Duration {
	ceiling := rc.baseDelay << (n - 1)
	if ceiling <= 0 || ceiling > rc.maxDelay {
		ceiling = rc.maxDelay
	}
	d := rc.jitter(ceiling)
	if d < rc.baseDelay {
		d = rc.baseDelay
	}
	return d
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
