package domain

import (
	"strings"
	"time"
)

// Notification types broadcast to organization members.
const (
	NotificationCampaign = "CAMPAIGN"
	NotificationEmailJob = "EMAIL_JOB"
)

// Notification is a tenant-wide message shown to every member of an
// organization.
type Notification struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Type           string         `json:"type" db:"type"`
	Severity       string         `json:"severity" db:"severity"`
	Title          string         `json:"title" db:"title"`
	Body           string         `json:"body" db:"body"`
	TargetURL      string         `json:"target_url,omitempty" db:"target_url"`
	Data           map[string]any `json:"data,omitempty" db:"data"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Normalize upper-cases the type and severity.
func (n *Notification) Normalize() {
	n.Type = strings.ToUpper(strings.TrimSpace(n.Type))
	n.Severity = strings.ToUpper(strings.TrimSpace(n.Severity))
}
