package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/store"
)

// fakeStore is an in-memory stand-in for the postgres store. Missing rows
// surface as pgx.ErrNoRows, matching the real implementation.
type fakeStore struct {
	keys   map[uuid.UUID]*model.APIKey
	proofs map[string]*model.ProofRequest
	uses   map[string]*model.AssertionUse
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keys:   make(map[uuid.UUID]*model.APIKey),
		proofs: make(map[string]*model.ProofRequest),
		uses:   make(map[string]*model.AssertionUse),
	}
}

func (f *fakeStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	f.keys[key.ID] = key
	return nil
}

func (f *fakeStore) GetActiveAPIKeyByHash(_ context.Context, keyHash string) (*model.APIKey, *model.Merchant, error) {
	for _, key := range f.keys {
		if key.KeyHash == keyHash && key.Active() {
			return key, &model.Merchant{ID: key.MerchantID}, nil
		}
	}
	return nil, nil, pgx.ErrNoRows
}

func (f *fakeStore) GetAPIKeyByID(_ context.Context, merchantID, id uuid.UUID) (*model.APIKey, error) {
	key, ok := f.keys[id]
	if !ok || key.MerchantID != merchantID {
		return nil, pgx.ErrNoRows
	}
	return key, nil
}

func (f *fakeStore) ListAPIKeys(_ context.Context, merchantID uuid.UUID, includeRevoked bool, page, perPage int) ([]*model.APIKey, int, error) {
	var out []*model.APIKey
	for _, key := range f.keys {
		if key.MerchantID != merchantID {
			continue
		}
		if !includeRevoked && !key.Active() {
			continue
		}
		out = append(out, key)
	}
	return out, len(out), nil
}

func (f *fakeStore) TouchAPIKey(_ context.Context, id uuid.UUID) error {
	key, ok := f.keys[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now().UTC()
	key.LastUsedAt = &now
	return nil
}

func (f *fakeStore) RevokeAPIKey(_ context.Context, merchantID, id uuid.UUID) error {
	key, ok := f.keys[id]
	if !ok || key.MerchantID != merchantID {
		return pgx.ErrNoRows
	}
	if key.RevokedAt == nil {
		now := time.Now().UTC()
		key.RevokedAt = &now
	}
	return nil
}

func (f *fakeStore) CountAPIKeys(_ context.Context) (int, error) {
	return len(f.keys), nil
}

func (f *fakeStore) CreateProofRequest(_ context.Context, pr *model.ProofRequest) error {
	now := time.Now().UTC()
	pr.CreatedAt = now
	pr.UpdatedAt = now
	f.proofs[pr.ID] = pr
	return nil
}

func (f *fakeStore) GetProofRequest(_ context.Context, id string) (*model.ProofRequest, error) {
	pr, ok := f.proofs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return pr, nil
}

func (f *fakeStore) GetMerchantProofRequest(_ context.Context, merchantID uuid.UUID, id string) (*model.ProofRequest, error) {
	pr, ok := f.proofs[id]
	if !ok || pr.MerchantID != merchantID {
		return nil, pgx.ErrNoRows
	}
	return pr, nil
}

func (f *fakeStore) ApplyProofResult(_ context.Context, id string, status model.ProofStatus, verifierRef string) (bool, error) {
	pr, ok := f.proofs[id]
	if !ok {
		return false, nil
	}
	if pr.Status == model.ProofStatusPending {
		pr.Status = status
		pr.VerifierRef = &verifierRef
		pr.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	if pr.Status == status && pr.VerifierRef != nil && *pr.VerifierRef == verifierRef {
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) InsertAssertionUse(_ context.Context, use *model.AssertionUse) error {
	if _, exists := f.uses[use.TokenID]; exists {
		return store.ErrDuplicateTokenID
	}
	use.CreatedAt = time.Now().UTC()
	f.uses[use.TokenID] = use
	return nil
}

func (f *fakeStore) PruneAssertionUses(_ context.Context, before time.Time) (int64, error) {
	var pruned int64
	for id, use := range f.uses {
		if use.ExpiresAt.Before(before) {
			delete(f.uses, id)
			pruned++
		}
	}
	return pruned, nil
}

// requireServiceError asserts that err is a *Error carrying the given code.
func requireServiceError(t interface {
	Helper()
	Fatalf(string, ...any)
}, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	svcErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *service.Error, got %T: %v", err, err)
	}
	if svcErr.Code != code {
		t.Fatalf("expected code %s, got %s", code, svcErr.Code)
	}
}
