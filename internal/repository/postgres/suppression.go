package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, orgID string, ch domain.Channel, identifier string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM suppressions WHERE organization_id = $1 AND channel = $2 AND identifier = $3)
	`, orgID, string(ch), identifier).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) (bool, error) {
	return insertSuppression(ctx, r.db, s)
}

// insertSuppression keeps the first entry for a triple and reports whether
// a row was inserted.
func insertSuppression(ctx context.Context, q querier, s *domain.Suppression) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO suppressions (id, organization_id, channel, identifier, reason, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, channel, identifier) DO NOTHING
	`, s.ID, s.OrganizationID, string(s.Channel), s.Identifier, string(s.Reason), string(s.Source), s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("suppress: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, orgID string, ch domain.Channel, identifier string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE organization_id = $1 AND channel = $2 AND identifier = $3`,
		orgID, string(ch), identifier,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func suppressionFilter(orgID string, f suppression.ListFilter) (string, []any) {
	where := []string{"organization_id = $1"}
	args := []any{orgID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if f.Reason != "" {
		add("reason = $%d", f.Reason)
	}
	if f.Source != "" {
		add("source = $%d", f.Source)
	}
	if f.Search != "" {
		add("identifier ILIKE $%d", "%"+f.Search+"%")
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (r *SuppressionRepo) List(ctx context.Context, orgID string, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where, args := suppressionFilter(orgID, f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppressions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	q := `SELECT id, organization_id, channel, identifier, reason, source, created_at FROM suppressions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Channel, &s.Identifier, &s.Reason, &s.Source, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) Count(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppressions WHERE organization_id = $1`, orgID,
	).Scan(&n)
	return n, err
}
