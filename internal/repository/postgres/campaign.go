package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var started, completed sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, channel, subject, body, media_url, status,
		       target_count, sent_count, delivered_count, read_count, failed_count, unsubscribed_count,
		       started_at, completed_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1 AND organization_id = $2
	`, id, orgID).Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Channel, &c.Subject, &c.Body, &c.MediaRef, &c.Status,
		&c.TargetCount, &c.SentCount, &c.DeliveredCount, &c.ReadCount, &c.FailedCount, &c.UnsubscribedCount,
		&started, &completed, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c.StartedAt = timePtr(started)
	c.CompletedAt = timePtr(completed)
	return c, nil
}

func (r *CampaignRepo) MarkLaunched(ctx context.Context, orgID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $3, started_at = $4, updated_at = $4
		WHERE id = $1 AND organization_id = $2 AND status IN ($5, $6)
	`, id, orgID, string(domain.CampaignSending), at, string(domain.CampaignDraft), string(domain.CampaignQueued))
	if err != nil {
		return fmt.Errorf("mark campaign launched: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrAlreadyLaunched
	}
	return nil
}

func (r *CampaignRepo) Revert(ctx context.Context, orgID, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $3, started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, id, orgID, string(domain.CampaignDraft))
	if err != nil {
		return fmt.Errorf("revert campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) AddRecipients(ctx context.Context, campaignID string, targets int, msgs []domain.OutboundMessage, rs []domain.CampaignRecipient, now time.Time) (*domain.Finalization, error) {
	var f *domain.Finalization
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE campaigns SET target_count = $2, updated_at = NOW() WHERE id = $1`, campaignID, targets); err != nil {
			return fmt.Errorf("set target count: %w", err)
		}
		for i := range msgs {
			if err := insertMessage(ctx, tx, &msgs[i]); err != nil {
				return err
			}
		}
		failed := 0
		for _, cr := range rs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_recipients (id, campaign_id, contact_id, outbound_message_id, email_recipient_id, status, error, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, cr.ID, campaignID, cr.ContactID, nullableRef(cr.OutboundMessageID), nullableRef(cr.EmailRecipientID),
				string(cr.Status), cr.Error, cr.UpdatedAt); err != nil {
				return fmt.Errorf("insert campaign recipient: %w", err)
			}
			if cr.Status == domain.CampaignRecipientFailed {
				failed++
			}
		}
		if err := addCampaignCounters(ctx, tx, campaignID, domain.CampaignDelta{Failed: failed}); err != nil {
			return err
		}
		var err error
		f, err = finalizeCampaign(ctx, tx, campaignID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// MarkCampaignRecipientUnsubscribed implements the campaign side of an
// unsubscribe link click.
func (r *CampaignRepo) MarkCampaignRecipientUnsubscribed(ctx context.Context, orgID, emailRecipientID string) (bool, error) {
	var changed bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		changed, err = advanceCampaignRecipient(ctx, tx, orgID, "", emailRecipientID,
			domain.CampaignRecipientUnsubscribed, "", time.Now().UTC())
		return err
	})
	return changed, err
}
