package store

import (
	"context"
	"fmt"
	"time"

	"github.com/age-assertion-service/internal/model"
)

// InsertAssertionUse claims a token identifier. The primary key on token_id
// plus ON CONFLICT DO NOTHING makes the claim atomic under concurrent
// verification attempts: exactly one insert wins, every other caller sees
// ErrDuplicateTokenID.
func (p *Postgres) InsertAssertionUse(ctx context.Context, use *model.AssertionUse) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO assertion_uses (token_id, nonce, subject_ref, merchant_id, proof_request_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_id) DO NOTHING
	`, use.TokenID, use.Nonce, use.SubjectRef, use.MerchantID, use.ProofRequestID, use.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert assertion_use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateTokenID
	}
	return nil
}

// PruneAssertionUses removes ledger rows whose token expired before the
// cutoff. Rows are only ever deleted here, never updated.
func (p *Postgres) PruneAssertionUses(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM assertion_uses WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("prune assertion_uses: %w", err)
	}
	return tag.RowsAffected(), nil
}
