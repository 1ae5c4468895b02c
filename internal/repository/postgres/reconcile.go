package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/reconcile"
)

// ReconcileStore implements reconcile.Store against PostgreSQL.
type ReconcileStore struct{ db *sql.DB }

// NewReconcileStore creates a Postgres-backed reconciliation store.
func NewReconcileStore(db *sql.DB) *ReconcileStore { return &ReconcileStore{db: db} }

func (s *ReconcileStore) InTx(ctx context.Context, fn func(tx reconcile.Tx) error) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&reconcileTx{tx: tx})
	})
}

func (s *ReconcileStore) RecordProviderEvent(ctx context.Context, e *domain.ProviderEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	payload, err := jsonb(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_events (id, organization_id, channel, provider_message_id, status, payload, latency_ms, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, nullable(e.OrganizationID), string(e.Channel), e.ProviderMessageID, e.Status, payload, e.LatencyMs, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("record provider event: %w", err)
	}
	return nil
}

type reconcileTx struct{ tx *sql.Tx }

func (t *reconcileTx) LockMessage(ctx context.Context, orgID string, ch domain.Channel, providerID string) (*domain.OutboundMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM outbound_messages WHERE channel = $1 AND provider_message_id = $2`
	args := []any{string(ch), providerID}
	if orgID != "" {
		query += ` AND organization_id = $3`
		args = append(args, orgID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1 FOR UPDATE`
	m, err := scanMessage(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reconcile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock message: %w", err)
	}
	return m, nil
}

func (t *reconcileTx) SaveMessage(ctx context.Context, m *domain.OutboundMessage) error {
	return updateMessage(ctx, t.tx, m)
}

func (t *reconcileTx) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scanContact(t.tx.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reconcile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (t *reconcileTx) LockRecipient(ctx context.Context, providerID string) (*domain.EmailRecipient, error) {
	r, err := scanRecipient(t.tx.QueryRowContext(ctx, `
		SELECT `+recipientColumns+` FROM email_recipients
		WHERE provider_message_id = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, providerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reconcile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock recipient: %w", err)
	}
	return r, nil
}

func (t *reconcileTx) SaveRecipient(ctx context.Context, r *domain.EmailRecipient) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE email_recipients
		SET status = $2, error = $3, sent_at = $4, read_at = $5, updated_at = NOW()
		WHERE id = $1
	`, r.ID, string(r.Status), r.Error, r.SentAt, r.ReadAt)
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	return nil
}

func (t *reconcileTx) AddJobCounters(ctx context.Context, jobID string, d domain.JobDelta) error {
	return addJobCounters(ctx, t.tx, jobID, d)
}

func (t *reconcileTx) AdvanceCampaignRecipient(ctx context.Context, link reconcile.CampaignLink, next domain.CampaignRecipientStatus, errText string, at time.Time) error {
	_, err := advanceCampaignRecipient(ctx, t.tx, "", link.MessageID, link.EmailRecipientID, next, errText, at)
	return err
}

func (t *reconcileTx) Suppress(ctx context.Context, s *domain.Suppression) (bool, error) {
	return insertSuppression(ctx, t.tx, s)
}

func (t *reconcileTx) FinalizeJob(ctx context.Context, jobID string, now time.Time) (*domain.Finalization, error) {
	return finalizeJob(ctx, t.tx, jobID, now)
}

func (t *reconcileTx) FinalizeCampaign(ctx context.Context, campaignID string, now time.Time) (*domain.Finalization, error) {
	return finalizeCampaign(ctx, t.tx, campaignID, now)
}
