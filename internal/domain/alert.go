package domain

import "time"

// Severity grades an alert or notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert categories raised by the dispatch and email pipelines.
const (
	AlertIntegrationMissing = "integration_missing"
	AlertCredentialDecrypt  = "credential_decrypt"
	AlertSendFailure        = "send_failure"
	AlertSendException      = "send_exception"
	AlertSendExhausted      = "send_exhausted"
	AlertDeliveryFailure    = "delivery_failure"
)

// Alert is an operator-facing record of a pipeline problem.
type Alert struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Category       string         `json:"category" db:"category"`
	Severity       Severity       `json:"severity" db:"severity"`
	Message        string         `json:"message" db:"message"`
	Metadata       map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
