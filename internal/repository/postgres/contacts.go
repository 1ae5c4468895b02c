package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/inbound"
)

// ContactRepo implements the contact lookups of the dispatch, email job,
// campaign, inbound and unsubscribe services.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `id, organization_id, full_name, COALESCE(phone_whatsapp,''), COALESCE(email,''),
	COALESCE(telegram_chat_id,''), COALESCE(instagram_scoped_id,''), status, metadata,
	last_inbound_at, last_outbound_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var (
		c       domain.Contact
		meta    []byte
		in, out sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.FullName, &c.PhoneWhatsApp, &c.Email,
		&c.TelegramChatID, &c.InstagramScopedID, &c.Status, &meta,
		&in, &out, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Metadata = decodeMap(meta)
	c.LastInboundAt = timePtr(in)
	c.LastOutboundAt = timePtr(out)
	return &c, nil
}

func (r *ContactRepo) GetContact(ctx context.Context, orgID, id string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND organization_id = $2`, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dispatch.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepo) ListContacts(ctx context.Context, orgID string, ids []string) ([]domain.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE organization_id = $1 AND id = ANY($2)`,
		orgID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ContactRepo) TouchLastOutbound(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET last_outbound_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last outbound: %w", err)
	}
	return nil
}

// identifierColumns whitelists the columns inbound matching may use.
var identifierColumns = map[string]bool{
	"phone_whatsapp":      true,
	"email":               true,
	"telegram_chat_id":    true,
	"instagram_scoped_id": true,
}

func (r *ContactRepo) FindContact(ctx context.Context, orgID, column, value string) (*domain.Contact, error) {
	if !identifierColumns[column] {
		return nil, fmt.Errorf("find contact: unknown column %q", column)
	}
	match := column + ` = $1`
	if column == "email" {
		match = `lower(email) = lower($1)`
	}
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE ` + match
	args := []any{value}
	if orgID != "" {
		q += ` AND organization_id = $2`
		args = append(args, orgID)
	}
	q += ` ORDER BY created_at LIMIT 1`

	c, err := scanContact(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inbound.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepo) RecordInbound(ctx context.Context, contactID string, at time.Time, fill map[string]string, status domain.ContactStatus) error {
	sets := []string{"last_inbound_at = $2", "updated_at = NOW()"}
	args := []any{contactID, at}
	for _, col := range []string{"phone_whatsapp", "email", "telegram_chat_id", "instagram_scoped_id"} {
		v, ok := fill[col]
		if !ok || v == "" {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = COALESCE(NULLIF(%s, ''), $%d)", col, col, len(args)))
	}
	if status != "" {
		args = append(args, string(status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	_, err := r.db.ExecContext(ctx, `UPDATE contacts SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}
	return nil
}

func (r *ContactRepo) CreateInbound(ctx context.Context, m *domain.InboundMessage) error {
	payload, err := jsonb(m.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO inbound_messages (id, organization_id, contact_id, channel, payload, media_url, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, nullable(m.OrganizationID), nullable(m.ContactID), string(m.Channel), payload, m.MediaURL, m.ReceivedAt)
	if err != nil {
		return fmt.Errorf("create inbound message: %w", err)
	}
	return nil
}

func (r *ContactRepo) MarkContactUnsubscribed(ctx context.Context, orgID, email string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET status = $3, updated_at = NOW()
		WHERE organization_id = $1 AND lower(email) = lower($2) AND status <> $3
	`, orgID, email, string(domain.ContactUnsubscribed))
	if err != nil {
		return 0, fmt.Errorf("mark contact unsubscribed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UnsubscribeRepo combines the contact and campaign sides of an
// unsubscribe.
type UnsubscribeRepo struct {
	*ContactRepo
	*CampaignRepo
}

func NewUnsubscribeRepo(db *sql.DB) *UnsubscribeRepo {
	return &UnsubscribeRepo{ContactRepo: NewContactRepo(db), CampaignRepo: NewCampaignRepo(db)}
}
