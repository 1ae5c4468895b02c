package channel

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// DefaultTimeout bounds every provider call.
const DefaultTimeout = 10 * time.Second

// File is an attachment loaded into memory.
type File struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one send request handed to a Sender.
type Message struct {
	Destination string
	Body        string
	MediaURL    string
	Subject     string
	Attachments []File
	Headers     map[string]string
}

// Result is the outcome of a provider call that completed.
type Result struct {
	Success           bool
	ProviderMessageID string
	Error             string
}

// Failed builds a permanent failure result.
func Failed(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Sender delivers a message over one channel.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, msg Message, creds domain.Credentials) (Result, error)
}

// ErrUnsupportedChannel is returned for a channel with no registered sender.
var ErrUnsupportedChannel = errors.New("unsupported channel")

// Registry maps each channel to its sender.
type Registry struct {
	senders map[domain.Channel]Sender
}

// NewRegistry builds a registry from senders, keyed by their channel.
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[domain.Channel]Sender, len(senders))}
	for _, s := range senders {
		r.senders[s.Channel()] = s
	}
	return r
}

// Get returns the sender for ch.
func (r *Registry) Get(ch domain.Channel) (Sender, error) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
	}
	return s, nil
}

var (
	e164Regex  = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateDestination checks the identifier format for ch.
func ValidateDestination(ch domain.Channel, dest string) error {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return errors.New("destination is required")
	}
	switch ch {
	case domain.ChannelWhatsApp:
		if !e164Regex.MatchString(dest) {
			return fmt.Errorf("invalid WhatsApp number %q: expected E.164 with leading +", dest)
		}
	case domain.ChannelEmail:
		if !emailRegex.MatchString(dest) {
			return fmt.Errorf("invalid email address")
		}
	case domain.ChannelTelegram:
		if _, err := strconv.ParseInt(dest, 10, 64); err != nil {
			return fmt.Errorf("invalid Telegram chat id %q", dest)
		}
	case domain.ChannelInstagram:
		// any non-empty scoped id
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
	}
	return nil
}

// ValidEmail reports whether addr looks like a deliverable address.
func ValidEmail(addr string) bool {
	return emailRegex.MatchString(strings.TrimSpace(addr))
}

// MediaType guesses the MIME type of a media URL from its extension.
func MediaType(mediaURL string) string {
	p := mediaURL
	if u, err := url.Parse(mediaURL); err == nil {
		p = u.Path
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(p))); t != "" {
		if i := strings.Index(t, ";"); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

// LooksLikeHTML reports whether body should be sent as HTML.
func LooksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<p") ||
		strings.Contains(lower, "<div") || strings.Contains(lower, "</")
}

func isRetryableStatus(code int) bool {
	return code == 429 || code >= 500
}
