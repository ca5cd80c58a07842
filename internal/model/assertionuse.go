package model

import (
	"time"

	"github.com/google/uuid"
)

// AssertionUse is a replay-ledger row recording the first successful
// verification of an assertion token. TokenID is unique system-wide; the
// insert that creates this row is what makes verification at-most-once.
// Rows are never mutated and are retained at least until past ExpiresAt.
type AssertionUse struct {
	TokenID        string    `json:"token_id"`
	Nonce          string    `json:"nonce"`
	SubjectRef     *string   `json:"subject_ref,omitempty"`
	MerchantID     uuid.UUID `json:"merchant_id"`
	ProofRequestID *string   `json:"proof_request_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}
