package suppression

import (
	"context"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Repository defines the data access contract for the suppression registry.
type Repository interface {
	// IsSuppressed returns true if the identifier is suppressed on the channel.
	IsSuppressed(ctx context.Context, orgID string, ch domain.Channel, identifier string) (bool, error)

	// Suppress adds an entry. If the triple already exists the existing
	// record is preserved and created is false.
	Suppress(ctx context.Context, s *domain.Suppression) (created bool, err error)

	// Remove deletes an entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, orgID string, ch domain.Channel, identifier string) error

	// List returns entries matching the filter.
	List(ctx context.Context, orgID string, filter ListFilter) ([]domain.Suppression, int, error)

	// Count returns the total number of entries for an org.
	Count(ctx context.Context, orgID string) (int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Channel string
	Reason  string
	Source  string
	Search  string
	Limit   int
	Offset  int
}
