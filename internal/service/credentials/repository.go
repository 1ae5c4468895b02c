package credentials

import (
	"context"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Repository defines the data access contract for integrations.
type Repository interface {
	// GetActive returns the active integration for (org, provider), or
	// ErrNotFound.
	GetActive(ctx context.Context, orgID, provider string) (*domain.Integration, error)

	// UpdateExtra replaces the extra JSON of an integration.
	UpdateExtra(ctx context.Context, id string, extra map[string]any) error
}
