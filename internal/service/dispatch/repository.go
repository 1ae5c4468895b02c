package dispatch

import (
	"context"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// MessageRepository persists outbound messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, m *domain.OutboundMessage) error
	GetMessage(ctx context.Context, id string) (*domain.OutboundMessage, error)
	GetOrgMessage(ctx context.Context, orgID, id string) (*domain.OutboundMessage, error)
	UpdateMessage(ctx context.Context, m *domain.OutboundMessage) error
	// CountRecentOnChannel counts messages created on ch since the given
	// time, not counting excludeID.
	CountRecentOnChannel(ctx context.Context, ch domain.Channel, since time.Time, excludeID string) (int, error)
	// ListDue returns pending or retrying messages with no enqueued_at
	// whose schedule has arrived.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboundMessage, error)
	MarkEnqueued(ctx context.Context, id string, at time.Time) error
}

// ContactRepository reads contacts and records outbound activity.
type ContactRepository interface {
	GetContact(ctx context.Context, orgID, id string) (*domain.Contact, error)
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
