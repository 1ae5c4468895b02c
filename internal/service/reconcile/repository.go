package reconcile

import (
	"context"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Store opens reconciliation transactions and appends provider events.
type Store interface {
	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	RecordProviderEvent(ctx context.Context, e *domain.ProviderEvent) error
}

// CampaignLink identifies the campaign recipient behind a send. Exactly
// one field is set.
type CampaignLink struct {
	MessageID        string
	EmailRecipientID string
}

// Tx is the unit of work for one event. Lock methods take a row lock that
// is held until the transaction ends and return ErrNotFound when nothing
// matches.
type Tx interface {
	// LockMessage finds the latest message on ch with the provider id.
	// A non-empty orgID restricts the match to that organization.
	LockMessage(ctx context.Context, orgID string, ch domain.Channel, providerID string) (*domain.OutboundMessage, error)
	SaveMessage(ctx context.Context, m *domain.OutboundMessage) error
	GetContact(ctx context.Context, id string) (*domain.Contact, error)

	LockRecipient(ctx context.Context, providerID string) (*domain.EmailRecipient, error)
	SaveRecipient(ctx context.Context, r *domain.EmailRecipient) error
	AddJobCounters(ctx context.Context, jobID string, d domain.JobDelta) error

	// AdvanceCampaignRecipient moves the linked campaign recipient forward
	// and applies the matching counter delta. Backward moves and missing
	// links are no-ops.
	AdvanceCampaignRecipient(ctx context.Context, link CampaignLink, next domain.CampaignRecipientStatus, errText string, at time.Time) error

	// Suppress inserts the entry unless the triple already exists.
	Suppress(ctx context.Context, s *domain.Suppression) (bool, error)

	FinalizeJob(ctx context.Context, jobID string, now time.Time) (*domain.Finalization, error)
	FinalizeCampaign(ctx context.Context, campaignID string, now time.Time) (*domain.Finalization, error)
}

// AlertRecorder raises operator alerts.
type AlertRecorder interface {
	Record(ctx context.Context, orgID, category string, severity domain.Severity, message string, metadata map[string]any) error
}

// CampaignNotifier announces finished campaigns.
type CampaignNotifier interface {
	CampaignFinished(ctx context.Context, f *domain.Finalization) error
}
