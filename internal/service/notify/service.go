package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// ErrMissingTitle is returned for a notification without a title.
var ErrMissingTitle = errors.New("notification title is required")

// Repository persists notifications.
type Repository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// Service writes notifications.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a notification broadcaster.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// BroadcastToOrg records one notification visible to every member of org.
func (s *Service) BroadcastToOrg(ctx context.Context, orgID, typ, severity, title, body, targetURL string, data map[string]any) (*domain.Notification, error) {
	if title == "" {
		return nil, ErrMissingTitle
	}
	if data == nil {
		data = map[string]any{}
	}
	n := &domain.Notification{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Type:           typ,
		Severity:       severity,
		Title:          title,
		Body:           body,
		TargetURL:      targetURL,
		Data:           data,
		CreatedAt:      s.now(),
	}
	n.Normalize()
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	logger.Info("notification broadcast", "org", orgID, "type", n.Type, "title", title)
	return n, nil
}

// CampaignFinished broadcasts the single completion notice of a campaign.
// It does nothing unless f records the campaign's terminal transition.
func (s *Service) CampaignFinished(ctx context.Context, f *domain.Finalization) error {
	if f == nil || !f.CampaignFinalized {
		return nil
	}
	severity, title := "success", "Campaign completed"
	if f.CampaignStatus == domain.CampaignFailed {
		severity, title = "warning", "Campaign finished with failures"
	}
	name := f.CampaignName
	if name == "" {
		name = "Campaign"
	}
	body := fmt.Sprintf("%s: %d sent, %d failed", name, f.SentCount, f.FailedCount)
	_, err := s.BroadcastToOrg(ctx, f.OrganizationID, domain.NotificationCampaign, severity, title, body,
		"/campaigns/"+f.CampaignID, map[string]any{
			"campaign_id": f.CampaignID,
			"job_id":      f.JobID,
			"status":      string(f.CampaignStatus),
		})
	return err
}
