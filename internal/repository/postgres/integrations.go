package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/credentials"
)

// IntegrationRepo implements credentials.Repository.
type IntegrationRepo struct{ db *sql.DB }

// NewIntegrationRepo creates a Postgres-backed integration repository.
func NewIntegrationRepo(db *sql.DB) *IntegrationRepo { return &IntegrationRepo{db: db} }

func (r *IntegrationRepo) GetActive(ctx context.Context, orgID, provider string) (*domain.Integration, error) {
	i := &domain.Integration{}
	var extra []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, provider, token_encrypted, extra, is_active, created_at, updated_at
		FROM integrations
		WHERE organization_id = $1 AND provider = $2 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`, orgID, provider).Scan(
		&i.ID, &i.OrganizationID, &i.Provider, &i.TokenEncrypted, &extra, &i.IsActive, &i.CreatedAt, &i.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credentials.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	i.Extra = decodeMap(extra)
	return i, nil
}

func (r *IntegrationRepo) UpdateExtra(ctx context.Context, id string, extra map[string]any) error {
	raw, err := jsonb(extra)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE integrations SET extra = $2, updated_at = NOW() WHERE id = $1`, id, raw,
	); err != nil {
		return fmt.Errorf("update integration extra: %w", err)
	}
	return nil
}
