package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Rollup helpers run inside a caller's transaction. Row locks are taken in
// the order recipient, job, campaign.

func addJobCounters(ctx context.Context, q querier, jobID string, d domain.JobDelta) error {
	if d.IsZero() {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		UPDATE email_jobs
		SET sent_count = sent_count + $2, failed_count = failed_count + $3,
		    skipped_count = skipped_count + $4, updated_at = NOW()
		WHERE id = $1
	`, jobID, d.Sent, d.Failed, d.Skipped)
	if err != nil {
		return fmt.Errorf("adjust job counters: %w", err)
	}
	return nil
}

func addCampaignCounters(ctx context.Context, q querier, campaignID string, d domain.CampaignDelta) error {
	if d.IsZero() {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count = sent_count + $2, delivered_count = delivered_count + $3,
		    read_count = read_count + $4, failed_count = failed_count + $5,
		    unsubscribed_count = unsubscribed_count + $6, updated_at = NOW()
		WHERE id = $1
	`, campaignID, d.Sent, d.Delivered, d.Read, d.Failed, d.Unsubscribed)
	if err != nil {
		return fmt.Errorf("adjust campaign counters: %w", err)
	}
	return nil
}

// advanceCampaignRecipient moves the campaign recipient linked to a
// message or email recipient forward and bumps the campaign counters.
// orgID, when set, restricts the match to that organization.
func advanceCampaignRecipient(ctx context.Context, q querier, orgID string, messageID, emailRecipientID string, next domain.CampaignRecipientStatus, errText string, at time.Time) (bool, error) {
	column, ref := "outbound_message_id", messageID
	if emailRecipientID != "" {
		column, ref = "email_recipient_id", emailRecipientID
	}
	if ref == "" {
		return false, nil
	}
	query := `SELECT cr.id, cr.campaign_id, cr.status FROM campaign_recipients cr`
	args := []any{ref}
	if orgID != "" {
		query += ` JOIN campaigns c ON c.id = cr.campaign_id WHERE cr.` + column + ` = $1 AND c.organization_id = $2 FOR UPDATE OF cr`
		args = append(args, orgID)
	} else {
		query += ` WHERE cr.` + column + ` = $1 FOR UPDATE`
	}

	var id, campaignID string
	var prev domain.CampaignRecipientStatus
	err := q.QueryRowContext(ctx, query, args...).Scan(&id, &campaignID, &prev)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock campaign recipient: %w", err)
	}
	if !prev.Advances(next) {
		return false, nil
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = $2, error = $3, updated_at = $4 WHERE id = $1
	`, id, string(next), errText, at); err != nil {
		return false, fmt.Errorf("update campaign recipient: %w", err)
	}
	if err := addCampaignCounters(ctx, q, campaignID, domain.CampaignDeltaFor(prev, next)); err != nil {
		return false, err
	}
	return true, nil
}

// finalizeJob recomputes the finalized recipient count under the job's row
// lock and flips the job terminal once it reaches total_recipients.
func finalizeJob(ctx context.Context, q querier, jobID string, now time.Time) (*domain.Finalization, error) {
	var (
		f          = &domain.Finalization{JobID: jobID}
		campaignID sql.NullString
		total      int
		failed     int
	)
	err := q.QueryRowContext(ctx, `
		SELECT organization_id, campaign_id, status, total_recipients, failed_count
		FROM email_jobs WHERE id = $1 FOR UPDATE
	`, jobID).Scan(&f.OrganizationID, &campaignID, &f.JobStatus, &total, &failed)
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}

	var finalized int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_recipients WHERE job_id = $1 AND status <> $2
	`, jobID, string(domain.RecipientQueued)).Scan(&finalized); err != nil {
		return nil, fmt.Errorf("count finalized recipients: %w", err)
	}
	if finalized < total {
		return f, nil
	}

	target := domain.TerminalJobStatus(failed)
	f.JobFinalized = !f.JobStatus.IsTerminal()
	if f.JobStatus != target {
		if _, err := q.ExecContext(ctx, `
			UPDATE email_jobs SET status = $2, completed_at = COALESCE(completed_at, $3), updated_at = $3
			WHERE id = $1
		`, jobID, string(target), now); err != nil {
			return nil, fmt.Errorf("finalize job: %w", err)
		}
		f.JobStatus = target
	}
	if !campaignID.Valid {
		return f, nil
	}

	cf, err := finalizeCampaign(ctx, q, campaignID.String, now)
	if err != nil {
		return nil, err
	}
	f.CampaignID, f.CampaignName = cf.CampaignID, cf.CampaignName
	f.CampaignStatus, f.CampaignFinalized = cf.CampaignStatus, cf.CampaignFinalized
	f.SentCount, f.FailedCount = cf.SentCount, cf.FailedCount
	return f, nil
}

// finalizeCampaign flips the campaign terminal once no campaign recipient
// is queued. Only the call that makes the transition sets
// CampaignFinalized.
func finalizeCampaign(ctx context.Context, q querier, campaignID string, now time.Time) (*domain.Finalization, error) {
	f := &domain.Finalization{CampaignID: campaignID}
	err := q.QueryRowContext(ctx, `
		SELECT organization_id, name, status, sent_count, failed_count
		FROM campaigns WHERE id = $1 FOR UPDATE
	`, campaignID).Scan(&f.OrganizationID, &f.CampaignName, &f.CampaignStatus, &f.SentCount, &f.FailedCount)
	if err != nil {
		return nil, fmt.Errorf("lock campaign: %w", err)
	}
	if f.CampaignStatus.IsTerminal() {
		return f, nil
	}

	var pending bool
	if err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM campaign_recipients WHERE campaign_id = $1 AND status = $2)
	`, campaignID, string(domain.CampaignRecipientQueued)).Scan(&pending); err != nil {
		return nil, fmt.Errorf("check queued campaign recipients: %w", err)
	}
	if pending {
		return f, nil
	}

	target := domain.TerminalCampaignStatus(f.FailedCount)
	if _, err := q.ExecContext(ctx, `
		UPDATE campaigns SET status = $2, completed_at = $3, updated_at = $3 WHERE id = $1
	`, campaignID, string(target), now); err != nil {
		return nil, fmt.Errorf("finalize campaign: %w", err)
	}
	f.CampaignStatus, f.CampaignFinalized = target, true
	return f, nil
}
