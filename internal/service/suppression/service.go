package suppression

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// IsSuppressed checks whether an identifier should be blocked from sending
// on the channel.
func (s *Service) IsSuppressed(ctx context.Context, orgID string, ch domain.Channel, identifier string) (bool, error) {
	identifier = domain.NormalizeIdentifier(ch, identifier)
	if identifier == "" {
		return false, nil
	}
	return s.repo.IsSuppressed(ctx, orgID, ch, identifier)
}

// Suppress adds an identifier to the registry. Idempotent: if the entry
// already exists it is preserved and created is false.
func (s *Service) Suppress(ctx context.Context, orgID string, ch domain.Channel, identifier string, reason domain.SuppressionReason, source domain.SuppressionSource) (bool, error) {
	if !ch.Valid() {
		return false, ErrInvalidChannel
	}
	identifier = domain.NormalizeIdentifier(ch, identifier)
	if identifier == "" {
		return false, ErrIdentifierMissing
	}

	entry := &domain.Suppression{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Channel:        ch,
		Identifier:     identifier,
		Reason:         reason,
		Source:         source,
		CreatedAt:      s.now().UTC(),
	}
	return s.repo.Suppress(ctx, entry)
}

// Remove deletes an entry. Returns an error if the identifier is not suppressed.
func (s *Service) Remove(ctx context.Context, orgID string, ch domain.Channel, identifier string) error {
	identifier = domain.NormalizeIdentifier(ch, identifier)
	if identifier == "" {
		return ErrIdentifierMissing
	}
	return s.repo.Remove(ctx, orgID, ch, identifier)
}

// List returns entries matching the given filter.
func (s *Service) List(ctx context.Context, orgID string, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, orgID, filter)
}

// Count returns the total number of entries for an organization.
func (s *Service) Count(ctx context.Context, orgID string) (int, error) {
	return s.repo.Count(ctx, orgID)
}

// Stats returns aggregate counts grouped by channel, reason and source.
type Stats struct {
	Total     int            `json:"total"`
	ByChannel map[string]int `json:"by_channel"`
	ByReason  map[string]int `json:"by_reason"`
	BySource  map[string]int `json:"by_source"`
}

// GetStats computes suppression statistics for the dashboard.
func (s *Service) GetStats(ctx context.Context, orgID string) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, orgID, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:     total,
		ByChannel: make(map[string]int),
		ByReason:  make(map[string]int),
		BySource:  make(map[string]int),
	}
	for _, e := range entries {
		stats.ByChannel[string(e.Channel)]++
		stats.ByReason[string(e.Reason)]++
		stats.BySource[string(e.Source)]++
	}
	return stats, nil
}
