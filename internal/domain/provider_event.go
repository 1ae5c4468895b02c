package domain

import "time"

// ProviderEvent is an append-only record of a provider callback or email
// event, kept for auditing and latency reporting.
type ProviderEvent struct {
	ID                string         `json:"id" db:"id"`
	OrganizationID    string         `json:"organization_id" db:"organization_id"`
	Channel           Channel        `json:"channel" db:"channel"`
	ProviderMessageID string         `json:"provider_message_id" db:"provider_message_id"`
	Status            string         `json:"status" db:"status"`
	Payload           map[string]any `json:"payload" db:"payload"`
	LatencyMs         *int64         `json:"latency_ms,omitempty" db:"latency_ms"`
	ReceivedAt        time.Time      `json:"received_at" db:"received_at"`
}

// CallbackStatus is a normalized delivery status reported by a provider.
type CallbackStatus string

const (
	CallbackDelivered CallbackStatus = "delivered"
	CallbackRead      CallbackStatus = "read"
	CallbackFailed    CallbackStatus = "failed"
	CallbackBounced   CallbackStatus = "bounced"
)

// ParseCallbackStatus reports whether s is a status the reconciler applies.
func ParseCallbackStatus(s string) (CallbackStatus, bool) {
	switch st := CallbackStatus(s); st {
	case CallbackDelivered, CallbackRead, CallbackFailed, CallbackBounced:
		return st, true
	}
	return "", false
}

// MessageStatus maps the callback onto the outbound message state machine.
func (s CallbackStatus) MessageStatus() MessageStatus {
	switch s {
	case CallbackDelivered:
		return MessageDelivered
	case CallbackRead:
		return MessageRead
	}
	return MessageFailed
}

// EmailEventType enumerates the email provider event kinds.
type EmailEventType string

const (
	EmailEventDelivered   EmailEventType = "delivered"
	EmailEventOpen        EmailEventType = "open"
	EmailEventBounce      EmailEventType = "bounce"
	EmailEventDropped     EmailEventType = "dropped"
	EmailEventSpamReport  EmailEventType = "spamreport"
	EmailEventUnsubscribe EmailEventType = "unsubscribe"
)

// EmailEvent is one parsed email provider event.
type EmailEvent struct {
	Event     EmailEventType `json:"event"`
	MessageID string         `json:"sg_message_id"`
	Email     string         `json:"email"`
	Reason    string         `json:"reason,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Raw       map[string]any `json:"-"`
}
