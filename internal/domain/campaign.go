package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignQueued    CampaignStatus = "queued"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// IsTerminal returns true if the campaign is in a final state.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

// Campaign groups sends over one channel and tracks delivery rollups.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Name           string         `json:"name" db:"name"`
	Channel        Channel        `json:"channel" db:"channel"`
	Subject        string         `json:"subject,omitempty" db:"subject"`
	Body           string         `json:"body" db:"body"`
	MediaRef       string         `json:"media_url,omitempty" db:"media_url"`
	Status         CampaignStatus `json:"status" db:"status"`

	// Rollups, maintained by atomic increments
	TargetCount       int `json:"target_count" db:"target_count"`
	SentCount         int `json:"sent_count" db:"sent_count"`
	DeliveredCount    int `json:"delivered_count" db:"delivered_count"`
	ReadCount         int `json:"read_count" db:"read_count"`
	FailedCount       int `json:"failed_count" db:"failed_count"`
	UnsubscribedCount int `json:"unsubscribed_count" db:"unsubscribed_count"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool { return c.Status.IsTerminal() }

// CampaignDelta is an atomic adjustment to a campaign's rollup counters.
type CampaignDelta struct {
	Sent         int
	Delivered    int
	Read         int
	Failed       int
	Unsubscribed int
}

// IsZero reports whether the delta changes nothing.
func (d CampaignDelta) IsZero() bool {
	return d == CampaignDelta{}
}

// CampaignRecipientStatus enumerates the states of one campaign target.
type CampaignRecipientStatus string

const (
	CampaignRecipientQueued       CampaignRecipientStatus = "queued"
	CampaignRecipientSent         CampaignRecipientStatus = "sent"
	CampaignRecipientDelivered    CampaignRecipientStatus = "delivered"
	CampaignRecipientRead         CampaignRecipientStatus = "read"
	CampaignRecipientFailed       CampaignRecipientStatus = "failed"
	CampaignRecipientUnsubscribed CampaignRecipientStatus = "unsubscribed"
	CampaignRecipientSkipped      CampaignRecipientStatus = "skipped"
)

// campaignRecipientRank orders statuses so that rollups only ever move
// forward. failed, unsubscribed and skipped are sinks.
var campaignRecipientRank = map[CampaignRecipientStatus]int{
	CampaignRecipientQueued:       0,
	CampaignRecipientSent:         1,
	CampaignRecipientDelivered:    2,
	CampaignRecipientRead:         3,
	CampaignRecipientFailed:       4,
	CampaignRecipientUnsubscribed: 5,
	CampaignRecipientSkipped:      6,
}

// Advances reports whether moving from s to next is a forward transition.
func (s CampaignRecipientStatus) Advances(next CampaignRecipientStatus) bool {
	if s == CampaignRecipientUnsubscribed || s == CampaignRecipientSkipped {
		return false
	}
	if next == CampaignRecipientSkipped {
		return s == CampaignRecipientQueued
	}
	if s == CampaignRecipientFailed {
		return next == CampaignRecipientUnsubscribed
	}
	return campaignRecipientRank[next] > campaignRecipientRank[s]
}

// CampaignRecipient is one target of a campaign.
type CampaignRecipient struct {
	ID                string                  `json:"id" db:"id"`
	CampaignID        string                  `json:"campaign_id" db:"campaign_id"`
	ContactID         string                  `json:"contact_id" db:"contact_id"`
	OutboundMessageID *string                 `json:"outbound_message_id,omitempty" db:"outbound_message_id"`
	EmailRecipientID  *string                 `json:"email_recipient_id,omitempty" db:"email_recipient_id"`
	Status            CampaignRecipientStatus `json:"status" db:"status"`
	Error             string                  `json:"error,omitempty" db:"error"`
	UpdatedAt         time.Time               `json:"updated_at" db:"updated_at"`
}

// CampaignDeltaFor returns the counter delta produced by moving a campaign
// recipient from prev to next. Each counter counts recipients that reached
// at least that state.
func CampaignDeltaFor(prev, next CampaignRecipientStatus) CampaignDelta {
	var d CampaignDelta
	if !prev.Advances(next) {
		return d
	}
	reached := func(s CampaignRecipientStatus, target CampaignRecipientStatus) bool {
		switch s {
		case CampaignRecipientFailed, CampaignRecipientUnsubscribed, CampaignRecipientSkipped:
			return false
		}
		return campaignRecipientRank[s] >= campaignRecipientRank[target]
	}
	if !reached(prev, CampaignRecipientSent) && reached(next, CampaignRecipientSent) {
		d.Sent++
	}
	if !reached(prev, CampaignRecipientDelivered) && reached(next, CampaignRecipientDelivered) {
		d.Delivered++
	}
	if !reached(prev, CampaignRecipientRead) && reached(next, CampaignRecipientRead) {
		d.Read++
	}
	switch next {
	case CampaignRecipientFailed:
		d.Failed++
	case CampaignRecipientUnsubscribed:
		d.Unsubscribed++
	}
	return d
}
