package model

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a merchant credential. Only the SHA-256 hash of the secret is
// stored; KeyPreview keeps the first and last few characters for display.
// Revocation is soft and one-way: RevokedAt is set once and never cleared.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	MerchantID uuid.UUID  `json:"merchant_id"`
	KeyHash    string     `json:"-"`
	KeyPreview string     `json:"key_preview"`
	Label      string     `json:"label"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the key can still authenticate requests.
func (k *APIKey) Active() bool {
	return k.RevokedAt == nil
}
