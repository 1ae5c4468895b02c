package inbound

import (
	"context"
	"errors"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// ErrNotFound is returned by FindContact when nothing matches.
var ErrNotFound = errors.New("contact not found")

// Repository stores inbound messages and the contact updates they cause.
type Repository interface {
	// FindContact returns the first contact whose column equals value.
	// An empty orgID searches every organization.
	FindContact(ctx context.Context, orgID string, column string, value string) (*domain.Contact, error)

	// RecordInbound stamps last_inbound_at, fills the given empty
	// identifier columns and sets the status when status is non-empty.
	RecordInbound(ctx context.Context, contactID string, at time.Time, fill map[string]string, status domain.ContactStatus) error

	CreateInbound(ctx context.Context, m *domain.InboundMessage) error
}

// Suppressor adds suppression entries.
type Suppressor interface {
	Suppress(ctx context.Context, orgID string, ch domain.Channel, identifier string, reason domain.SuppressionReason, source domain.SuppressionSource) (bool, error)
}
