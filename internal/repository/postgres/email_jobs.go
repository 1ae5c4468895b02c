package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
)

// EmailJobRepo implements emailjob.Repository and emailjob.Finalizer.
type EmailJobRepo struct{ db *sql.DB }

// NewEmailJobRepo creates a Postgres-backed email job repository.
func NewEmailJobRepo(db *sql.DB) *EmailJobRepo { return &EmailJobRepo{db: db} }

const jobColumns = `id, organization_id, campaign_id, subject, body_html, body_text, footer_html,
	attachments, status, total_recipients, sent_count, failed_count, skipped_count, excluded_count,
	exclusions, error, started_at, completed_at, created_at, updated_at`

const recipientColumns = `id, job_id, organization_id, contact_id, email, full_name, company_name,
	status, error, sent_at, read_at, retry_count, provider_message_id, signed_token, created_at, updated_at`

func scanJob(row rowScanner) (*domain.EmailJob, error) {
	var (
		j                       domain.EmailJob
		campaignID              sql.NullString
		attachments, exclusions []byte
		started, completed      sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.OrganizationID, &campaignID, &j.Subject, &j.BodyHTML, &j.BodyText, &j.FooterHTML,
		&attachments, &j.Status, &j.TotalRecipients, &j.SentCount, &j.FailedCount, &j.SkippedCount, &j.ExcludedCount,
		&exclusions, &j.Error, &started, &completed, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.CampaignID = strPtr(campaignID)
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &j.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	j.Exclusions = []domain.Exclusion{}
	if len(exclusions) > 0 {
		if err := json.Unmarshal(exclusions, &j.Exclusions); err != nil {
			return nil, fmt.Errorf("decode exclusions: %w", err)
		}
	}
	return &j, nil
}

func scanRecipient(row rowScanner) (*domain.EmailRecipient, error) {
	var (
		r          domain.EmailRecipient
		contactID  sql.NullString
		sent, read sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.OrganizationID, &contactID, &r.Email, &r.FullName, &r.CompanyName,
		&r.Status, &r.Error, &sent, &read, &r.RetryCount, &r.ProviderMessageID, &r.SignedToken,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ContactID = strPtr(contactID)
	r.SentAt = timePtr(sent)
	r.ReadAt = timePtr(read)
	return &r, nil
}

// CreateJob inserts the job, its recipients and, for campaign jobs, one
// campaign recipient per email recipient plus the campaign target count.
func (r *EmailJobRepo) CreateJob(ctx context.Context, job *domain.EmailJob, recipients []domain.EmailRecipient) error {
	attachments, err := json.Marshal(job.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	if job.Attachments == nil {
		attachments = []byte("[]")
	}
	exclusions, err := json.Marshal(job.Exclusions)
	if err != nil {
		return fmt.Errorf("encode exclusions: %w", err)
	}
	if job.Exclusions == nil {
		exclusions = []byte("[]")
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO email_jobs (id, organization_id, campaign_id, subject, body_html, body_text, footer_html,
				attachments, status, total_recipients, excluded_count, exclusions, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, job.ID, job.OrganizationID, nullableRef(job.CampaignID), job.Subject, job.BodyHTML, job.BodyText, job.FooterHTML,
			attachments, string(job.Status), job.TotalRecipients, job.ExcludedCount, exclusions, job.CreatedAt, job.UpdatedAt); err != nil {
			return fmt.Errorf("insert email job: %w", err)
		}

		for _, rc := range recipients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO email_recipients (id, job_id, organization_id, contact_id, email, full_name, company_name,
					status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, rc.ID, job.ID, job.OrganizationID, nullableRef(rc.ContactID), rc.Email, rc.FullName, rc.CompanyName,
				string(rc.Status), rc.CreatedAt, rc.UpdatedAt); err != nil {
				return fmt.Errorf("insert email recipient: %w", err)
			}
			if job.CampaignID == nil || rc.ContactID == nil {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_recipients (id, campaign_id, contact_id, email_recipient_id, status, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, uuid.New().String(), *job.CampaignID, *rc.ContactID, rc.ID, string(domain.CampaignRecipientQueued), rc.CreatedAt); err != nil {
				return fmt.Errorf("insert campaign recipient: %w", err)
			}
		}
		if job.CampaignID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE campaigns SET target_count = $2, updated_at = NOW() WHERE id = $1`,
				*job.CampaignID, job.TotalRecipients); err != nil {
				return fmt.Errorf("set campaign target count: %w", err)
			}
		}
		return nil
	})
}

func (r *EmailJobRepo) GetJob(ctx context.Context, id string) (*domain.EmailJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM email_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, emailjob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email job: %w", err)
	}
	return j, nil
}

func (r *EmailJobRepo) GetOrgJob(ctx context.Context, orgID, id string) (*domain.EmailJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM email_jobs WHERE id = $1 AND organization_id = $2`, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, emailjob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email job: %w", err)
	}
	return j, nil
}

func (r *EmailJobRepo) MarkSending(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_jobs SET status = $2, started_at = COALESCE(started_at, $3), error = '', updated_at = $3
		WHERE id = $1
	`, id, string(domain.JobSending), at)
	if err != nil {
		return fmt.Errorf("mark job sending: %w", err)
	}
	return nil
}

func (r *EmailJobRepo) MarkFailed(ctx context.Context, id, errText string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_jobs SET status = $2, error = $3, completed_at = $4, updated_at = $4
		WHERE id = $1
	`, id, string(domain.JobFailed), errText, at)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

func (r *EmailJobRepo) ListQueued(ctx context.Context, jobID, afterID string, limit int) ([]domain.EmailRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recipientColumns+` FROM email_recipients
		WHERE job_id = $1 AND status = $2 AND ($3::uuid IS NULL OR id > $3::uuid)
		ORDER BY id
		LIMIT $4
	`, jobID, string(domain.RecipientQueued), nullable(afterID), limit)
	if err != nil {
		return nil, fmt.Errorf("list queued recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailRecipient
	for rows.Next() {
		rc, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rc)
	}
	return out, rows.Err()
}

func (r *EmailJobRepo) SetToken(ctx context.Context, recipientID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_recipients SET signed_token = $2, updated_at = NOW() WHERE id = $1`, recipientID, token)
	if err != nil {
		return fmt.Errorf("set unsubscribe token: %w", err)
	}
	return nil
}

// campaignStatusForRecipient maps a send outcome onto the campaign
// recipient state machine.
func campaignStatusForRecipient(s domain.RecipientStatus) (domain.CampaignRecipientStatus, bool) {
	switch s {
	case domain.RecipientSent:
		return domain.CampaignRecipientSent, true
	case domain.RecipientFailed:
		return domain.CampaignRecipientFailed, true
	case domain.RecipientSkipped:
		return domain.CampaignRecipientSkipped, true
	}
	return "", false
}

func (r *EmailJobRepo) SaveBatch(ctx context.Context, jobID string, recipients []domain.EmailRecipient, delta domain.JobDelta) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, rc := range recipients {
			if _, err := tx.ExecContext(ctx, `
				UPDATE email_recipients
				SET status = $2, error = $3, sent_at = $4, retry_count = $5, provider_message_id = $6,
				    updated_at = NOW()
				WHERE id = $1
			`, rc.ID, string(rc.Status), rc.Error, rc.SentAt, rc.RetryCount, rc.ProviderMessageID); err != nil {
				return fmt.Errorf("update recipient: %w", err)
			}
			if next, ok := campaignStatusForRecipient(rc.Status); ok {
				if _, err := advanceCampaignRecipient(ctx, tx, "", "", rc.ID, next, rc.Error, now); err != nil {
					return err
				}
			}
		}
		return addJobCounters(ctx, tx, jobID, delta)
	})
}

func (r *EmailJobRepo) ResetFailed(ctx context.Context, jobID string) (int, error) {
	var queued int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE email_recipients SET status = $2, error = '', updated_at = NOW()
			WHERE job_id = $1 AND status = $3
		`, jobID, string(domain.RecipientQueued), string(domain.RecipientFailed))
		if err != nil {
			return fmt.Errorf("reset failed recipients: %w", err)
		}
		reset, _ := res.RowsAffected()
		// A job that failed before sending still holds its queued recipients.
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM email_recipients WHERE job_id = $1 AND status = $2
		`, jobID, string(domain.RecipientQueued)).Scan(&queued); err != nil {
			return fmt.Errorf("count queued recipients: %w", err)
		}
		if queued == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE email_jobs
			SET status = $2, failed_count = GREATEST(failed_count - $3, 0), completed_at = NULL,
			    error = '', updated_at = NOW()
			WHERE id = $1
		`, jobID, string(domain.JobQueued), reset); err != nil {
			return fmt.Errorf("reopen job: %w", err)
		}
		return nil
	})
	return queued, err
}

func (r *EmailJobRepo) RecordEngagement(ctx context.Context, e *domain.ContactEngagement) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_engagements (id, contact_id, channel, subject, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ContactID, string(e.Channel), e.Subject, e.Status, e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record engagement: %w", err)
	}
	return nil
}

// FinalizeJob applies the finalization rule in its own transaction.
func (r *EmailJobRepo) FinalizeJob(ctx context.Context, jobID string, now time.Time) (*domain.Finalization, error) {
	var f *domain.Finalization
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		f, err = finalizeJob(ctx, tx, jobID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
