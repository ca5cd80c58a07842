package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/age-assertion-service/internal/model"
)

func (p *Postgres) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO api_keys (merchant_id, key_hash, key_preview, label)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, key.MerchantID, key.KeyHash, key.KeyPreview, key.Label).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api_key: %w", err)
	}
	return nil
}

const apiKeyColumns = `id, merchant_id, key_hash, key_preview, label, created_at, last_used_at, revoked_at`

func (p *Postgres) GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, *model.Merchant, error) {
	var key model.APIKey
	var m model.Merchant
	err := p.pool.QueryRow(ctx, `
		SELECT k.id, k.merchant_id, k.key_hash, k.key_preview, k.label,
		       k.created_at, k.last_used_at, k.revoked_at,
		       m.id, m.external_ref, m.name, m.created_at
		FROM api_keys k
		JOIN merchants m ON m.id = k.merchant_id
		WHERE k.key_hash = $1 AND k.revoked_at IS NULL
	`, keyHash).Scan(
		&key.ID, &key.MerchantID, &key.KeyHash, &key.KeyPreview, &key.Label,
		&key.CreatedAt, &key.LastUsedAt, &key.RevokedAt,
		&m.ID, &m.ExternalRef, &m.Name, &m.CreatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query api_key by hash: %w", err)
	}
	return &key, &m, nil
}

func (p *Postgres) GetAPIKeyByID(ctx context.Context, merchantID, id uuid.UUID) (*model.APIKey, error) {
	var key model.APIKey
	err := p.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 AND merchant_id = $2
	`, id, merchantID).Scan(
		&key.ID, &key.MerchantID, &key.KeyHash, &key.KeyPreview, &key.Label,
		&key.CreatedAt, &key.LastUsedAt, &key.RevokedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("query api_key: %w", err)
	}
	return &key, nil
}

func (p *Postgres) ListAPIKeys(ctx context.Context, merchantID uuid.UUID, includeRevoked bool, page, perPage int) ([]*model.APIKey, int, error) {
	where := `WHERE merchant_id = $1`
	if !includeRevoked {
		where += ` AND revoked_at IS NULL`
	}

	var total int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys `+where, merchantID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count api_keys: %w", err)
	}

	offset := (page - 1) * perPage
	rows, err := p.pool.Query(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys `+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, merchantID, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list api_keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		var key model.APIKey
		if err := rows.Scan(
			&key.ID, &key.MerchantID, &key.KeyHash, &key.KeyPreview, &key.Label,
			&key.CreatedAt, &key.LastUsedAt, &key.RevokedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan api_key: %w", err)
		}
		keys = append(keys, &key)
	}
	return keys, total, nil
}

func (p *Postgres) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("touch api_key: %w", err)
	}
	return nil
}

func (p *Postgres) RevokeAPIKey(ctx context.Context, merchantID, id uuid.UUID) error {
	// COALESCE keeps the original revocation time if two revokes race.
	tag, err := p.pool.Exec(ctx, `
		UPDATE api_keys SET revoked_at = COALESCE(revoked_at, NOW())
		WHERE id = $1 AND merchant_id = $2
	`, id, merchantID)
	if err != nil {
		return fmt.Errorf("revoke api_key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found")
	}
	return nil
}

func (p *Postgres) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count api_keys: %w", err)
	}
	return count, nil
}
