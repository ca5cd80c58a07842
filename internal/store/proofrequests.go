package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/age-assertion-service/internal/model"
)

func (p *Postgres) CreateProofRequest(ctx context.Context, pr *model.ProofRequest) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO proof_requests (id, merchant_id, subject_ref, min_age, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, pr.ID, pr.MerchantID, pr.SubjectRef, pr.MinAge, pr.Status).Scan(&pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert proof_request: %w", err)
	}
	return nil
}

const proofRequestColumns = `id, merchant_id, subject_ref, min_age, status, verifier_ref, created_at, updated_at`

func (p *Postgres) GetProofRequest(ctx context.Context, id string) (*model.ProofRequest, error) {
	return p.scanProofRequest(ctx, `SELECT `+proofRequestColumns+` FROM proof_requests WHERE id = $1`, id)
}

func (p *Postgres) GetMerchantProofRequest(ctx context.Context, merchantID uuid.UUID, id string) (*model.ProofRequest, error) {
	return p.scanProofRequest(ctx, `
		SELECT `+proofRequestColumns+` FROM proof_requests WHERE id = $1 AND merchant_id = $2
	`, id, merchantID)
}

// ApplyProofResult is the single writer for proof status. The WHERE clause
// makes the transition atomic: only a pending row, or a terminal row already
// carrying the identical result, matches.
func (p *Postgres) ApplyProofResult(ctx context.Context, id string, status model.ProofStatus, verifierRef string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE proof_requests
		SET status = $2, verifier_ref = $3, updated_at = NOW()
		WHERE id = $1 AND (status = 'pending' OR (status = $2 AND verifier_ref = $3))
	`, id, status, verifierRef)
	if err != nil {
		return false, fmt.Errorf("apply proof result: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) scanProofRequest(ctx context.Context, query string, args ...interface{}) (*model.ProofRequest, error) {
	var pr model.ProofRequest
	err := p.pool.QueryRow(ctx, query, args...).Scan(
		&pr.ID, &pr.MerchantID, &pr.SubjectRef, &pr.MinAge,
		&pr.Status, &pr.VerifierRef, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("query proof_request: %w", err)
	}
	return &pr, nil
}
