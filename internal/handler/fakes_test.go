package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/age-assertion-service/internal/middleware"
	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/service"
	"github.com/age-assertion-service/internal/store"
	"github.com/age-assertion-service/internal/token"
)

const (
	testVerifierSecret = "test-verifier-secret"
	testSigningSecret  = "test-signing-secret-with-enough-bytes"
)

// memStore backs the handler tests with in-memory state, mirroring the
// postgres store's contract including pgx.ErrNoRows for missing rows.
type memStore struct {
	merchants map[uuid.UUID]*model.Merchant
	keys      map[uuid.UUID]*model.APIKey
	proofs    map[string]*model.ProofRequest
	uses      map[string]*model.AssertionUse
}

func newMemStore() *memStore {
	return &memStore{
		merchants: make(map[uuid.UUID]*model.Merchant),
		keys:      make(map[uuid.UUID]*model.APIKey),
		proofs:    make(map[string]*model.ProofRequest),
		uses:      make(map[string]*model.AssertionUse),
	}
}

func (m *memStore) CreateMerchant(_ context.Context, merchant *model.Merchant) error {
	if merchant.ID == uuid.Nil {
		merchant.ID = uuid.New()
	}
	merchant.CreatedAt = time.Now().UTC()
	m.merchants[merchant.ID] = merchant
	return nil
}

func (m *memStore) GetMerchantByID(_ context.Context, id uuid.UUID) (*model.Merchant, error) {
	merchant, ok := m.merchants[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return merchant, nil
}

func (m *memStore) GetMerchantByExternalRef(_ context.Context, ref string) (*model.Merchant, error) {
	for _, merchant := range m.merchants {
		if merchant.ExternalRef == ref {
			return merchant, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) CountMerchants(context.Context) (int, error) { return len(m.merchants), nil }

func (m *memStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	key.CreatedAt = time.Now().UTC()
	m.keys[key.ID] = key
	return nil
}

func (m *memStore) GetActiveAPIKeyByHash(_ context.Context, keyHash string) (*model.APIKey, *model.Merchant, error) {
	for _, key := range m.keys {
		if key.KeyHash == keyHash && key.Active() {
			merchant, ok := m.merchants[key.MerchantID]
			if !ok {
				return nil, nil, pgx.ErrNoRows
			}
			return key, merchant, nil
		}
	}
	return nil, nil, pgx.ErrNoRows
}

func (m *memStore) GetAPIKeyByID(_ context.Context, merchantID, id uuid.UUID) (*model.APIKey, error) {
	key, ok := m.keys[id]
	if !ok || key.MerchantID != merchantID {
		return nil, pgx.ErrNoRows
	}
	return key, nil
}

func (m *memStore) ListAPIKeys(_ context.Context, merchantID uuid.UUID, includeRevoked bool, page, perPage int) ([]*model.APIKey, int, error) {
	var out []*model.APIKey
	for _, key := range m.keys {
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

func (m *memStore) TouchAPIKey(_ context.Context, id uuid.UUID) error {
	key, ok := m.keys[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now().UTC()
	key.LastUsedAt = &now
	return nil
}

func (m *memStore) RevokeAPIKey(_ context.Context, merchantID, id uuid.UUID) error {
	key, ok := m.keys[id]
	if !ok || key.MerchantID != merchantID {
		return pgx.ErrNoRows
	}
	if key.RevokedAt == nil {
		now := time.Now().UTC()
		key.RevokedAt = &now
	}
	return nil
}

func (m *memStore) CountAPIKeys(context.Context) (int, error) { return len(m.keys), nil }

func (m *memStore) CreateProofRequest(_ context.Context, pr *model.ProofRequest) error {
	now := time.Now().UTC()
	pr.CreatedAt = now
	pr.UpdatedAt = now
	m.proofs[pr.ID] = pr
	return nil
}

func (m *memStore) GetProofRequest(_ context.Context, id string) (*model.ProofRequest, error) {
	pr, ok := m.proofs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return pr, nil
}

func (m *memStore) GetMerchantProofRequest(_ context.Context, merchantID uuid.UUID, id string) (*model.ProofRequest, error) {
	pr, ok := m.proofs[id]
	if !ok || pr.MerchantID != merchantID {
		return nil, pgx.ErrNoRows
	}
	return pr, nil
}

func (m *memStore) ApplyProofResult(_ context.Context, id string, status model.ProofStatus, verifierRef string) (bool, error) {
	pr, ok := m.proofs[id]
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

func (m *memStore) InsertAssertionUse(_ context.Context, use *model.AssertionUse) error {
	if _, exists := m.uses[use.TokenID]; exists {
		return store.ErrDuplicateTokenID
	}
	use.CreatedAt = time.Now().UTC()
	m.uses[use.TokenID] = use
	return nil
}

func (m *memStore) PruneAssertionUses(_ context.Context, before time.Time) (int64, error) {
	var pruned int64
	for id, use := range m.uses {
		if use.ExpiresAt.Before(before) {
			delete(m.uses, id)
			pruned++
		}
	}
	return pruned, nil
}

var _ store.Store = (*memStore)(nil)

// testServer wires the real services and middleware over an in-memory store.
type testServer struct {
	router *chi.Mux
	store  *memStore
	rawKey string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ms := newMemStore()
	ctx := context.Background()

	merchant := &model.Merchant{ExternalRef: "mch_merchant_a", Name: "Merchant A"}
	if err := ms.CreateMerchant(ctx, merchant); err != nil {
		t.Fatalf("create merchant: %v", err)
	}

	apiKeySvc := service.NewAPIKeyService(ms)
	issued, err := apiKeySvc.Issue(ctx, merchant.ID, "test")
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}

	minter := token.NewMinter(testSigningSecret, 10*time.Minute)
	proofSvc := service.NewProofService(ms, nil)
	assertionSvc := service.NewAssertionService(ms, ms, minter, nil)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(ms, nil))
			r.Method(http.MethodPost, "/proof-requests", NewCreateProofRequestHandler(proofSvc))
			r.Method(http.MethodGet, "/proof-requests/{id}", NewGetProofRequestHandler(proofSvc))
			r.Method(http.MethodPost, "/assertions", NewIssueAssertionHandler(assertionSvc))
			r.Method(http.MethodPost, "/assertions/verify", NewVerifyAssertionHandler(assertionSvc))
			r.Method(http.MethodPost, "/api-keys", NewIssueAPIKeyHandler(apiKeySvc))
			r.Method(http.MethodGet, "/api-keys", NewListAPIKeysHandler(apiKeySvc))
			r.Method(http.MethodDelete, "/api-keys/{id}", NewRevokeAPIKeyHandler(apiKeySvc))
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.VerifierSecretAuth(testVerifierSecret, nil))
			r.Method(http.MethodPost, "/verifier/callback", NewVerifierCallbackHandler(proofSvc))
		})
	})

	return &testServer{router: r, store: ms, rawKey: issued.RawKey}
}

// addMerchant registers a second merchant and returns its plaintext key.
func (ts *testServer) addMerchant(t *testing.T, externalRef string) string {
	t.Helper()
	ctx := context.Background()
	merchant := &model.Merchant{ExternalRef: externalRef, Name: externalRef}
	if err := ts.store.CreateMerchant(ctx, merchant); err != nil {
		t.Fatalf("create merchant: %v", err)
	}
	issued, err := service.NewAPIKeyService(ts.store).Issue(ctx, merchant.ID, "test")
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}
	return issued.RawKey
}

func (ts *testServer) do(t *testing.T, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) callback(t *testing.T, secret, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/verifier/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(middleware.VerifierSecretHeader, secret)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func bodyErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rr, &body)
	return body.Code
}
