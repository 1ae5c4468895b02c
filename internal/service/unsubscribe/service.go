package unsubscribe

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Repository applies the persisted side of an opt-out.
type Repository interface {
	// MarkContactUnsubscribed flips every contact of org with this email to
	// unsubscribed and returns how many rows changed.
	MarkContactUnsubscribed(ctx context.Context, orgID, email string) (int, error)

	// MarkCampaignRecipientUnsubscribed moves the campaign recipient linked
	// to an email recipient to unsubscribed and bumps the campaign's
	// unsubscribed_count. It reports false when already applied or when no
	// campaign recipient is linked.
	MarkCampaignRecipientUnsubscribed(ctx context.Context, orgID, emailRecipientID string) (bool, error)
}

// Suppressor is the slice of the suppression registry used here.
type Suppressor interface {
	Suppress(ctx context.Context, orgID string, ch domain.Channel, identifier string,
		reason domain.SuppressionReason, source domain.SuppressionSource) (bool, error)
}

// Result describes what an unsubscribe did.
type Result struct {
	Claims          *Claims
	ContactsUpdated int
	NewSuppression  bool
	CampaignUpdated bool
}

// Service processes unsubscribe links.
type Service struct {
	codec      *Codec
	repo       Repository
	suppressor Suppressor
}

// NewService creates a new unsubscribe service.
func NewService(codec *Codec, repo Repository, suppressor Suppressor) *Service {
	return &Service{codec: codec, repo: repo, suppressor: suppressor}
}

// Codec returns the token codec used by the service.
func (s *Service) Codec() *Codec { return s.codec }

// Unsubscribe verifies token and opts the address out. Repeated calls with
// the same token succeed without creating duplicates.
func (s *Service) Unsubscribe(ctx context.Context, token string) (*Result, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	res := &Result{Claims: claims}

	res.ContactsUpdated, err = s.repo.MarkContactUnsubscribed(ctx, claims.OrganizationID, claims.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("mark contact unsubscribed: %w", err)
	}

	res.NewSuppression, err = s.suppressor.Suppress(ctx, claims.OrganizationID, domain.ChannelEmail,
		claims.Email, domain.ReasonUnsubscribe, domain.SourceUnsubscribeLink)
	if err != nil {
		return nil, fmt.Errorf("suppress: %w", err)
	}

	if claims.RecipientID != "" {
		res.CampaignUpdated, err = s.repo.MarkCampaignRecipientUnsubscribed(ctx, claims.OrganizationID, claims.RecipientID)
		if err != nil {
			log.Printf("[Unsubscribe] campaign recipient update failed for recipient %s: %v", claims.RecipientID, err)
		}
	}
	return res, nil
}
