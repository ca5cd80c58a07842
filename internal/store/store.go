package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/age-assertion-service/internal/model"
)

// ErrDuplicateTokenID is returned by InsertAssertionUse when the ledger
// already holds a row for the token identifier. It is the replay signal.
var ErrDuplicateTokenID = errors.New("assertion token already used")

// MerchantStore defines operations for merchant records.
type MerchantStore interface {
	CreateMerchant(ctx context.Context, m *model.Merchant) error
	GetMerchantByID(ctx context.Context, id uuid.UUID) (*model.Merchant, error)
	GetMerchantByExternalRef(ctx context.Context, ref string) (*model.Merchant, error)
	CountMerchants(ctx context.Context) (int, error)
}

// APIKeyStore defines operations for API key credentials.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	// GetActiveAPIKeyByHash resolves a presented credential's digest to the
	// key and its owning merchant. Revoked keys are indistinguishable from
	// nonexistent ones.
	GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, *model.Merchant, error)
	GetAPIKeyByID(ctx context.Context, merchantID, id uuid.UUID) (*model.APIKey, error)
	ListAPIKeys(ctx context.Context, merchantID uuid.UUID, includeRevoked bool, page, perPage int) ([]*model.APIKey, int, error)
	// TouchAPIKey records last-used time; callers treat failures as best-effort.
	TouchAPIKey(ctx context.Context, id uuid.UUID) error
	RevokeAPIKey(ctx context.Context, merchantID, id uuid.UUID) error
	CountAPIKeys(ctx context.Context) (int, error)
}

// ProofRequestStore defines operations for proof request lifecycle state.
type ProofRequestStore interface {
	CreateProofRequest(ctx context.Context, pr *model.ProofRequest) error
	// GetProofRequest looks up by id alone; the verifier callback channel
	// has no merchant scoping.
	GetProofRequest(ctx context.Context, id string) (*model.ProofRequest, error)
	GetMerchantProofRequest(ctx context.Context, merchantID uuid.UUID, id string) (*model.ProofRequest, error)
	// ApplyProofResult atomically moves a pending request to a terminal
	// status. Returns false when no row was updated, i.e. the request is
	// missing or already terminal with a different outcome.
	ApplyProofResult(ctx context.Context, id string, status model.ProofStatus, verifierRef string) (bool, error)
}

// AssertionUseStore is the replay ledger.
type AssertionUseStore interface {
	// InsertAssertionUse atomically claims a token identifier. Returns
	// ErrDuplicateTokenID when the id was already claimed.
	InsertAssertionUse(ctx context.Context, use *model.AssertionUse) error
	PruneAssertionUses(ctx context.Context, before time.Time) (int64, error)
}

// Store combines all per-entity stores.
type Store interface {
	MerchantStore
	APIKeyStore
	ProofRequestStore
	AssertionUseStore
}
