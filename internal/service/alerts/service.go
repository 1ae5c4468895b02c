package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// mailTimeout bounds the alert mail call.
const mailTimeout = 15 * time.Second

// Service records alerts.
type Service struct {
	repo   Repository
	mailer Mailer
	now    func() time.Time
}

// NewService creates an alert recorder. mailer may be nil.
func NewService(repo Repository, mailer Mailer) *Service {
	return &Service{repo: repo, mailer: mailer, now: func() time.Time { return time.Now().UTC() }}
}

// Record persists an alert and mails it when a mailer is set. Mail
// failures are logged, never returned.
func (s *Service) Record(ctx context.Context, orgID, category string, severity domain.Severity, message string, metadata map[string]any) error {
	if severity == "" {
		severity = domain.SeverityWarning
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	a := &domain.Alert{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Category:       category,
		Severity:       severity,
		Message:        message,
		Metadata:       metadata,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateAlert(ctx, a); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	logger.Warn("monitoring alert", "org", orgID, "category", category, "severity", string(severity), "message", message)

	if s.mailer != nil {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()
		if err := s.mailer.SendAlert(mctx, a); err != nil {
			logger.Error("alert email failed", "category", category, "error", err)
		}
	}
	return nil
}
