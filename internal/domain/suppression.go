package domain

import (
	"strings"
	"time"
)

// SuppressionReason enumerates why an identifier was suppressed.
type SuppressionReason string

const (
	ReasonHardBounce      SuppressionReason = "hard_bounce"
	ReasonDropped         SuppressionReason = "dropped"
	ReasonSpamReport      SuppressionReason = "spam_report"
	ReasonProviderFailure SuppressionReason = "provider_failure"
	ReasonUnsubscribe     SuppressionReason = "unsubscribe"
	ReasonOptOutKeyword   SuppressionReason = "opt_out_keyword"
	ReasonManual          SuppressionReason = "manual"
)

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceProviderCallback SuppressionSource = "provider_callback"
	SourceEmailEvents      SuppressionSource = "email_events"
	SourceUnsubscribeLink  SuppressionSource = "unsubscribe_link"
	SourceInboundWebhook   SuppressionSource = "inbound_webhook"
	SourceManual           SuppressionSource = "manual"
)

// Suppression is a standing block on sending to one identifier on one
// channel for one organization. The triple is unique.
type Suppression struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	Channel        Channel           `json:"channel" db:"channel"`
	Identifier     string            `json:"identifier" db:"identifier"`
	Reason         SuppressionReason `json:"reason" db:"reason"`
	Source         SuppressionSource `json:"source" db:"source"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// NormalizeIdentifier canonicalizes an identifier for storage and lookup.
// Email addresses compare case-insensitively; other channels compare as-is.
func NormalizeIdentifier(ch Channel, identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if ch == ChannelEmail {
		return strings.ToLower(identifier)
	}
	return identifier
}
