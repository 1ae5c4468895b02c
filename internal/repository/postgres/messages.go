package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
)

// MessageRepo implements dispatch.MessageRepository against PostgreSQL.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed outbound message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `id, organization_id, contact_id, campaign_id, channel, body, media_url,
	scheduled_for, status, error, retry_count, provider_message_id, provider_status, trace_id,
	enqueued_at, sent_at, delivered_at, failed_at, created_at, updated_at`

func scanMessage(row rowScanner) (*domain.OutboundMessage, error) {
	var (
		m                                    domain.OutboundMessage
		campaignID                           sql.NullString
		scheduled, enqueued, sent, delivered sql.NullTime
		failed                               sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.OrganizationID, &m.ContactID, &campaignID, &m.Channel, &m.Body, &m.MediaRef,
		&scheduled, &m.Status, &m.Error, &m.RetryCount, &m.ProviderMessageID, &m.ProviderStatus, &m.TraceID,
		&enqueued, &sent, &delivered, &failed, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.CampaignID = strPtr(campaignID)
	m.ScheduledFor = timePtr(scheduled)
	m.EnqueuedAt = timePtr(enqueued)
	m.SentAt = timePtr(sent)
	m.DeliveredAt = timePtr(delivered)
	m.FailedAt = timePtr(failed)
	return &m, nil
}

func (r *MessageRepo) CreateMessage(ctx context.Context, m *domain.OutboundMessage) error {
	return insertMessage(ctx, r.db, m)
}

func insertMessage(ctx context.Context, q querier, m *domain.OutboundMessage) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO outbound_messages (id, organization_id, contact_id, campaign_id, channel, body, media_url,
			scheduled_for, status, error, retry_count, trace_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, m.ID, m.OrganizationID, m.ContactID, nullableRef(m.CampaignID), string(m.Channel), m.Body, m.MediaRef,
		m.ScheduledFor, string(m.Status), m.Error, m.RetryCount, m.TraceID, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetMessage(ctx context.Context, id string) (*domain.OutboundMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM outbound_messages WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) GetOrgMessage(ctx context.Context, orgID, id string) (*domain.OutboundMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM outbound_messages WHERE id = $1 AND organization_id = $2`, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) UpdateMessage(ctx context.Context, m *domain.OutboundMessage) error {
	return updateMessage(ctx, r.db, m)
}

func updateMessage(ctx context.Context, q querier, m *domain.OutboundMessage) error {
	res, err := q.ExecContext(ctx, `
		UPDATE outbound_messages
		SET status = $2, error = $3, retry_count = $4, provider_message_id = $5, provider_status = $6,
		    trace_id = $7, enqueued_at = $8, sent_at = $9, delivered_at = $10, failed_at = $11, updated_at = NOW()
		WHERE id = $1
	`, m.ID, string(m.Status), m.Error, m.RetryCount, m.ProviderMessageID, m.ProviderStatus,
		m.TraceID, m.EnqueuedAt, m.SentAt, m.DeliveredAt, m.FailedAt)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) CountRecentOnChannel(ctx context.Context, ch domain.Channel, since time.Time, excludeID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbound_messages
		WHERE channel = $1 AND created_at >= $2 AND id <> $3
	`, string(ch), since, excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent messages: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboundMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM outbound_messages
		WHERE status IN ($1, $2) AND enqueued_at IS NULL
		  AND (scheduled_for IS NULL OR scheduled_for <= $3)
		ORDER BY COALESCE(scheduled_for, created_at)
		LIMIT $4
	`, string(domain.MessagePending), string(domain.MessageRetrying), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due messages: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboundMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) MarkEnqueued(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbound_messages SET enqueued_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark enqueued: %w", err)
	}
	return nil
}
