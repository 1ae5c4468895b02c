package domain

import "time"

// MessageStatus enumerates the lifecycle states of an outbound message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageRetrying  MessageStatus = "retrying"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// messageTransitions is the automatic state machine. failed -> retrying is
// deliberately absent; it is only reachable through ManualRetry.
var messageTransitions = map[MessageStatus][]MessageStatus{
	MessagePending:   {MessageSent, MessageFailed, MessageRetrying},
	MessageRetrying:  {MessageSent, MessageFailed, MessageRetrying},
	MessageSent:      {MessageDelivered, MessageRead, MessageFailed},
	MessageDelivered: {MessageRead, MessageFailed},
	MessageRead:      {MessageFailed},
	MessageFailed:    {},
}

// Valid reports whether s is a known message status.
func (s MessageStatus) Valid() bool {
	_, ok := messageTransitions[s]
	return ok
}

// CanTransition reports whether the worker or reconciler may move a
// message from s to next.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	for _, allowed := range messageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states the worker never leaves on its own.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageFailed || s == MessageDelivered || s == MessageRead
}

// Dispatchable reports whether a worker should attempt a send.
func (s MessageStatus) Dispatchable() bool {
	return s == MessagePending || s == MessageRetrying
}

// CanManualRetry reports whether an operator may re-queue the message.
func (s MessageStatus) CanManualRetry() bool { return s == MessageFailed }

// OutboundMessage is one directed send attempt to one contact on one channel.
type OutboundMessage struct {
	ID                string        `json:"id" db:"id"`
	OrganizationID    string        `json:"organization_id" db:"organization_id"`
	ContactID         string        `json:"contact_id" db:"contact_id"`
	CampaignID        *string       `json:"campaign_id,omitempty" db:"campaign_id"`
	Channel           Channel       `json:"channel" db:"channel"`
	Body              string        `json:"body" db:"body"`
	MediaRef          string        `json:"media_url,omitempty" db:"media_url"`
	ScheduledFor      *time.Time    `json:"scheduled_for,omitempty" db:"scheduled_for"`
	Status            MessageStatus `json:"status" db:"status"`
	Error             string        `json:"error,omitempty" db:"error"`
	RetryCount        int           `json:"retry_count" db:"retry_count"`
	ProviderMessageID string        `json:"provider_message_id,omitempty" db:"provider_message_id"`
	ProviderStatus    string        `json:"provider_status,omitempty" db:"provider_status"`
	TraceID           string        `json:"trace_id,omitempty" db:"trace_id"`
	EnqueuedAt        *time.Time    `json:"enqueued_at,omitempty" db:"enqueued_at"`
	SentAt            *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
	FailedAt          *time.Time    `json:"failed_at,omitempty" db:"failed_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// Failure reasons written to OutboundMessage.Error by the dispatch worker.
const (
	ErrTextContactInactive    = "Contact inactive"
	ErrTextMissingDestination = "Missing destination identifier for contact."
	ErrTextThrottled          = "Throttled: per-minute limit hit"
	ErrTextSuppressed         = "Suppressed recipient"
	ErrTextUnknownSendFailure = "Unknown send failure"
)
