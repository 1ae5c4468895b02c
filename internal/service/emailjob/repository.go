package emailjob

import (
	"context"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/distlock"
)

// Repository persists jobs and their recipients.
type Repository interface {
	// CreateJob inserts the job and its recipients in one transaction.
	CreateJob(ctx context.Context, job *domain.EmailJob, recipients []domain.EmailRecipient) error
	GetJob(ctx context.Context, id string) (*domain.EmailJob, error)
	GetOrgJob(ctx context.Context, orgID, id string) (*domain.EmailJob, error)
	MarkSending(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, errText string, at time.Time) error
	// ListQueued pages QUEUED recipients ordered by id, starting after afterID.
	ListQueued(ctx context.Context, jobID, afterID string, limit int) ([]domain.EmailRecipient, error)
	SetToken(ctx context.Context, recipientID, token string) error
	// SaveBatch writes recipient outcomes and applies delta to the job
	// counters in one transaction.
	SaveBatch(ctx context.Context, jobID string, recipients []domain.EmailRecipient, delta domain.JobDelta) error
	// ResetFailed moves FAILED recipients back to QUEUED. When any
	// recipient is left QUEUED it reopens the job and returns how many
	// recipients will be sent.
	ResetFailed(ctx context.Context, jobID string) (int, error)
	RecordEngagement(ctx context.Context, e *domain.ContactEngagement) error
}

// Finalizer applies the shared job and campaign finalization rule.
type Finalizer interface {
	FinalizeJob(ctx context.Context, jobID string, now time.Time) (*domain.Finalization, error)
}

// ContactDirectory reads the contact pool.
type ContactDirectory interface {
	// ListContacts returns the organization's contacts among ids.
	ListContacts(ctx context.Context, orgID string, ids []string) ([]domain.Contact, error)
	TouchLastOutbound(ctx context.Context, id string, at time.Time) error
}

// SuppressionChecker answers registry lookups.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, orgID string, ch domain.Channel, identifier string) (bool, error)
}

// CredentialProvider resolves decrypted provider credentials.
type CredentialProvider interface {
	Resolve(ctx context.Context, orgID, provider string) (domain.Credentials, error)
}

// AlertRecorder records operator alerts.
type AlertRecorder interface {
	Record(ctx context.Context, orgID, category string, severity domain.Severity, message string, metadata map[string]any) error
}

// CampaignNotifier announces a campaign's terminal transition.
type CampaignNotifier interface {
	CampaignFinished(ctx context.Context, f *domain.Finalization) error
}

// LockFactory creates per-job locks.
type LockFactory interface {
	New(key string) distlock.DistLock
}
