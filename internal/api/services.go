package api

import (
	"context"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/campaign"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
	"github.com/jadidihosein68/osaconnect/internal/service/inbound"
	"github.com/jadidihosein68/osaconnect/internal/service/reconcile"
	"github.com/jadidihosein68/osaconnect/internal/service/suppression"
	"github.com/jadidihosein68/osaconnect/internal/service/unsubscribe"
)

// MessageService is the single-message write path.
type MessageService interface {
	Create(ctx context.Context, orgID string, req dispatch.CreateRequest) (*domain.OutboundMessage, error)
	Get(ctx context.Context, orgID, id string) (*domain.OutboundMessage, error)
	Retry(ctx context.Context, orgID, id string) (*domain.OutboundMessage, error)
}

// EmailJobService creates and inspects batch email jobs.
type EmailJobService interface {
	Create(ctx context.Context, orgID string, req emailjob.CreateRequest) (*domain.EmailJob, error)
	Get(ctx context.Context, orgID, id string) (*domain.EmailJob, error)
	RetryFailed(ctx context.Context, orgID, id string) (int, error)
	UploadAttachment(ctx context.Context, orgID, filename, contentType string, data []byte) (*domain.Attachment, error)
}

type CampaignService interface {
	Get(ctx context.Context, orgID, id string) (*domain.Campaign, error)
	Launch(ctx context.Context, orgID, id string, in campaign.LaunchInput) (*campaign.LaunchResult, error)
}

// Reconciler applies provider delivery reports.
type Reconciler interface {
	ApplyCallback(ctx context.Context, ch domain.Channel, cb reconcile.Callback) (reconcile.Result, error)
	ApplyEmailEvents(ctx context.Context, events []domain.EmailEvent) reconcile.Summary
}

type Unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) (*unsubscribe.Result, error)
}

type InboundReceiver interface {
	Receive(ctx context.Context, orgID string, ch domain.Channel, payload map[string]any) (*inbound.Result, error)
}

// SuppressionService manages the suppression registry.
type SuppressionService interface {
	Suppress(ctx context.Context, orgID string, ch domain.Channel, identifier string, reason domain.SuppressionReason, source domain.SuppressionSource) (bool, error)
	Remove(ctx context.Context, orgID string, ch domain.Channel, identifier string) error
	List(ctx context.Context, orgID string, filter suppression.ListFilter) ([]domain.Suppression, int, error)
	GetStats(ctx context.Context, orgID string) (*suppression.Stats, error)
}
