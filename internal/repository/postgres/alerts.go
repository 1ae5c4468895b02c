package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// AlertRepo stores monitoring alerts.
type AlertRepo struct{ db *sql.DB }

func NewAlertRepo(db *sql.DB) *AlertRepo { return &AlertRepo{db: db} }

func (r *AlertRepo) CreateAlert(ctx context.Context, a *domain.Alert) error {
	meta, err := jsonb(a.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, organization_id, category, severity, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, nullable(a.OrganizationID), a.Category, string(a.Severity), a.Message, meta, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// NotificationRepo stores in-app notifications.
type NotificationRepo struct{ db *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

func (r *NotificationRepo) CreateNotification(ctx context.Context, n *domain.Notification) error {
	data, err := jsonb(n.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, organization_id, type, severity, title, body, target_url, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.OrganizationID, n.Type, n.Severity, n.Title, n.Body, n.TargetURL, data, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}
