// Package inbound logs messages received on provider webhooks, links them
// to contacts and honors opt-out keywords.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// OptOutKeywords stop all further sends on the channel.
var OptOutKeywords = map[string]bool{
	"stop":        true,
	"unsubscribe": true,
	"cancel":      true,
	"optout":      true,
	"opt-out":     true,
}

// lookup pairs a contact column with the payload keys that carry it, in
// match order.
type lookup struct {
	column  string
	channel domain.Channel
	keys    []string
}

var lookups = []lookup{
	{"phone_whatsapp", domain.ChannelWhatsApp, []string{"phone", "wa_id"}},
	{"email", domain.ChannelEmail, []string{"email"}},
	{"telegram_chat_id", domain.ChannelTelegram, []string{"telegram_chat_id"}},
	{"instagram_scoped_id", domain.ChannelInstagram, []string{"instagram_scoped_id"}},
}

// Result is returned to the provider.
type Result struct {
	ID        string  `json:"id"`
	ContactID *string `json:"contact"`
	Status    string  `json:"status"`
	OptedOut  bool    `json:"opted_out,omitempty"`
}

// Service handles inbound webhooks.
type Service struct {
	repo       Repository
	suppressor Suppressor
	now        func() time.Time
}

// NewService creates the inbound handler.
func NewService(repo Repository, suppressor Suppressor) *Service {
	return &Service{repo: repo, suppressor: suppressor, now: func() time.Time { return time.Now().UTC() }}
}

// Receive logs one inbound payload for channel ch. orgID may be empty when
// the provider does not identify the tenant.
func (s *Service) Receive(ctx context.Context, orgID string, ch domain.Channel, payload map[string]any) (*Result, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	now := s.now()

	contact, err := s.match(ctx, orgID, payload)
	if err != nil {
		return nil, err
	}

	in := &domain.InboundMessage{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Channel:        ch,
		Payload:        payload,
		MediaURL:       field(payload, "media_url"),
		ReceivedAt:     now,
	}
	if contact != nil {
		in.OrganizationID = contact.OrganizationID
		in.ContactID = contact.ID
	}
	if err := s.repo.CreateInbound(ctx, in); err != nil {
		return nil, fmt.Errorf("create inbound message: %w", err)
	}

	res := &Result{ID: in.ID, Status: "logged"}
	if contact == nil {
		logger.Info("inbound message without contact", "channel", string(ch))
		return res, nil
	}
	res.ContactID = &contact.ID

	var status domain.ContactStatus
	if IsOptOut(messageText(payload)) {
		status = domain.ContactUnsubscribed
		res.OptedOut = true
	}
	if err := s.repo.RecordInbound(ctx, contact.ID, now, missingIdentifiers(contact, payload), status); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	if res.OptedOut {
		s.optOut(ctx, contact, ch)
	}
	return res, nil
}

func (s *Service) match(ctx context.Context, orgID string, payload map[string]any) (*domain.Contact, error) {
	for _, l := range lookups {
		value := firstField(payload, l.keys...)
		if value == "" {
			continue
		}
		value = domain.NormalizeIdentifier(l.channel, value)
		c, err := s.repo.FindContact(ctx, orgID, l.column, value)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find contact by %s: %w", l.column, err)
		}
		return c, nil
	}
	return nil, nil
}

func (s *Service) optOut(ctx context.Context, c *domain.Contact, ch domain.Channel) {
	identifier := c.Destination(ch)
	if identifier == "" || s.suppressor == nil {
		return
	}
	if _, err := s.suppressor.Suppress(ctx, c.OrganizationID, ch, identifier, domain.ReasonOptOutKeyword, domain.SourceInboundWebhook); err != nil {
		logger.Error("opt-out suppression failed", "contact_id", c.ID, "channel", string(ch), "error", err)
		return
	}
	logger.Info("contact opted out", "contact_id", c.ID, "channel", string(ch))
}

// IsOptOut reports whether text contains an opt-out keyword as a word.
func IsOptOut(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for _, w := range words {
		if OptOutKeywords[strings.Trim(w, "-")] {
			return true
		}
	}
	return false
}

func messageText(payload map[string]any) string {
	return firstField(payload, "text", "message", "body")
}

// missingIdentifiers returns payload identifiers for columns the contact
// has left empty.
func missingIdentifiers(c *domain.Contact, payload map[string]any) map[string]string {
	current := map[string]string{
		"phone_whatsapp":      c.PhoneWhatsApp,
		"email":               c.Email,
		"telegram_chat_id":    c.TelegramChatID,
		"instagram_scoped_id": c.InstagramScopedID,
	}
	fill := map[string]string{}
	for _, l := range lookups {
		if current[l.column] != "" {
			continue
		}
		if v := firstField(payload, l.keys...); v != "" {
			fill[l.column] = domain.NormalizeIdentifier(l.channel, v)
		}
	}
	return fill
}

func firstField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := field(payload, k); v != "" {
			return v
		}
	}
	return ""
}

func field(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
