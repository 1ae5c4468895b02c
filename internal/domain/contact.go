package domain

import (
	"strings"
	"time"
)

// ContactStatus enumerates the states a contact can be in.
type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactBlocked      ContactStatus = "blocked"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
)

// Contact is a person reachable on one or more channels.
type Contact struct {
	ID                string         `json:"id" db:"id"`
	OrganizationID    string         `json:"organization_id" db:"organization_id"`
	FullName          string         `json:"full_name" db:"full_name"`
	PhoneWhatsApp     string         `json:"phone_whatsapp,omitempty" db:"phone_whatsapp"`
	Email             string         `json:"email,omitempty" db:"email"`
	TelegramChatID    string         `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	InstagramScopedID string         `json:"instagram_scoped_id,omitempty" db:"instagram_scoped_id"`
	Status            ContactStatus  `json:"status" db:"status"`
	Metadata          map[string]any `json:"metadata,omitempty" db:"metadata"`
	LastInboundAt     *time.Time     `json:"last_inbound_at,omitempty" db:"last_inbound_at"`
	LastOutboundAt    *time.Time     `json:"last_outbound_at,omitempty" db:"last_outbound_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the contact may receive messages.
func (c *Contact) IsActive() bool { return c.Status == ContactActive }

// Destination returns the identifier used to reach the contact on ch,
// or "" when the contact has none.
func (c *Contact) Destination(ch Channel) string {
	switch ch {
	case ChannelWhatsApp:
		return strings.TrimSpace(c.PhoneWhatsApp)
	case ChannelEmail:
		return strings.TrimSpace(c.Email)
	case ChannelTelegram:
		return strings.TrimSpace(c.TelegramChatID)
	case ChannelInstagram:
		return strings.TrimSpace(c.InstagramScopedID)
	}
	return ""
}

// NameParts splits the full name into first and remaining names.
func (c *Contact) NameParts() (first, last string) {
	return SplitName(c.FullName)
}

// CompanyName reads metadata.company_name when present.
func (c *Contact) CompanyName() string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata["company_name"].(string); ok {
		return v
	}
	return ""
}

// SplitName returns the first word and the rest of a full name.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// ContactEngagement records one outbound touch on a contact.
type ContactEngagement struct {
	ID        string    `json:"id" db:"id"`
	ContactID string    `json:"contact_id" db:"contact_id"`
	Channel   Channel   `json:"channel" db:"channel"`
	Subject   string    `json:"subject" db:"subject"`
	Status    string    `json:"status" db:"status"`
	Error     string    `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// InboundMessage is a raw message received from a provider webhook.
type InboundMessage struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id,omitempty" db:"organization_id"`
	ContactID      string         `json:"contact_id,omitempty" db:"contact_id"`
	Channel        Channel        `json:"channel" db:"channel"`
	Payload        map[string]any `json:"payload" db:"payload"`
	MediaURL       string         `json:"media_url,omitempty" db:"media_url"`
	ReceivedAt     time.Time      `json:"received_at" db:"received_at"`
}
