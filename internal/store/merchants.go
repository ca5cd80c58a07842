package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/age-assertion-service/internal/model"
)

func (p *Postgres) CreateMerchant(ctx context.Context, m *model.Merchant) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO merchants (external_ref, name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, m.ExternalRef, m.Name).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

const merchantColumns = `id, external_ref, name, created_at`

func (p *Postgres) GetMerchantByID(ctx context.Context, id uuid.UUID) (*model.Merchant, error) {
	return p.scanMerchant(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id)
}

func (p *Postgres) GetMerchantByExternalRef(ctx context.Context, ref string) (*model.Merchant, error) {
	return p.scanMerchant(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE external_ref = $1`, ref)
}

func (p *Postgres) CountMerchants(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM merchants`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count merchants: %w", err)
	}
	return count, nil
}

func (p *Postgres) scanMerchant(ctx context.Context, query string, args ...interface{}) (*model.Merchant, error) {
	var m model.Merchant
	err := p.pool.QueryRow(ctx, query, args...).Scan(&m.ID, &m.ExternalRef, &m.Name, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query merchant: %w", err)
	}
	return &m, nil
}
