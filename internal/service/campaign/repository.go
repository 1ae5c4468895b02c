package campaign

import (
	"context"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, orgID, id string) (*domain.Campaign, error)

	// MarkLaunched moves a draft or queued campaign to sending. Returns
	// ErrAlreadyLaunched when another caller got there first.
	MarkLaunched(ctx context.Context, orgID, id string, at time.Time) error

	// Revert puts a campaign whose launch failed back to draft. It is only
	// called before anything of the launch was stored.
	Revert(ctx context.Context, orgID, id string) error

	// AddRecipients stores the campaign's messages and recipients and its
	// target count in one transaction, counts failed recipients into
	// failed_count and finalizes the campaign when none is left queued.
	AddRecipients(ctx context.Context, campaignID string, targets int, msgs []domain.OutboundMessage, rs []domain.CampaignRecipient, now time.Time) (*domain.Finalization, error)
}

// ContactDirectory lists contacts of one organization.
type ContactDirectory interface {
	ListContacts(ctx context.Context, orgID string, ids []string) ([]domain.Contact, error)
}

// MessagePlanner validates campaign messages and enqueues them once they
// are stored.
type MessagePlanner interface {
	Prepare(ctx context.Context, orgID string, req dispatch.CreateRequest) (*domain.OutboundMessage, error)
	Enqueue(ctx context.Context, msg *domain.OutboundMessage) bool
}

// JobCreator creates email jobs. The job's campaign recipients and the
// campaign target count are stored with the job.
type JobCreator interface {
	Create(ctx context.Context, orgID string, req emailjob.CreateRequest) (*domain.EmailJob, error)
}

// CampaignNotifier announces a campaign's terminal transition.
type CampaignNotifier interface {
	CampaignFinished(ctx context.Context, f *domain.Finalization) error
}
