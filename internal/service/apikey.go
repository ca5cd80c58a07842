package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/age-assertion-service/internal/middleware"
	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/store"
	"github.com/age-assertion-service/internal/validation"
)

const apiKeyPrefix = "ak_"

// APIKeyService handles merchant credential business logic. The plaintext
// secret exists only in the Issue return value; everything persisted is the
// digest plus a redacted preview.
type APIKeyService struct {
	store store.APIKeyStore
}

// NewAPIKeyService creates a new API key service.
func NewAPIKeyService(s store.APIKeyStore) *APIKeyService {
	return &APIKeyService{store: s}
}

// IssueResult contains the output of a successful key issuance. RawKey is
// returned exactly once and never persisted or logged.
type IssueResult struct {
	APIKey *model.APIKey
	RawKey string
}

// Issue generates a high-entropy key for the merchant and persists its digest.
func (s *APIKeyService) Issue(ctx context.Context, merchantID uuid.UUID, label string) (*IssueResult, error) {
	if err := validation.KeyLabel(label); err != nil {
		return nil, NewValidation(err.Error())
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate API key")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to issue API key")
	}

	apiKey := &model.APIKey{
		MerchantID: merchantID,
		KeyHash:    middleware.SHA256Hex(rawKey),
		KeyPreview: redactKey(rawKey),
		Label:      label,
	}

	if err := s.store.CreateAPIKey(ctx, apiKey); err != nil {
		log.Error().Err(err).Msg("failed to create API key")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to issue API key")
	}

	return &IssueResult{APIKey: apiKey, RawKey: rawKey}, nil
}

// List returns the merchant's keys, optionally including revoked ones.
func (s *APIKeyService) List(ctx context.Context, merchantID uuid.UUID, includeRevoked bool, page, perPage int) ([]*model.APIKey, int, error) {
	keys, total, err := s.store.ListAPIKeys(ctx, merchantID, includeRevoked, page, perPage)
	if err != nil {
		log.Error().Err(err).Str("merchant_id", merchantID.String()).Msg("failed to list API keys")
		return nil, 0, NewInternal("INTERNAL_ERROR", "Failed to list API keys")
	}
	return keys, total, nil
}

// Revoke disables a key permanently. Revoking an already-revoked key reports
// success without state change. Revoking the key that authenticated the
// current call is refused: the caller would lock itself out.
func (s *APIKeyService) Revoke(ctx context.Context, mc *middleware.MerchantContext, keyID uuid.UUID) error {
	key, err := s.store.GetAPIKeyByID(ctx, mc.MerchantID, keyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NewNotFound("NOT_FOUND", "API key not found")
		}
		log.Error().Err(err).Str("key_id", keyID.String()).Msg("failed to load API key")
		return NewInternal("INTERNAL_ERROR", "Failed to revoke API key")
	}

	if key.KeyHash == mc.KeyHash {
		return NewConflict("KEY_IN_USE", "Cannot revoke the API key used to authenticate this request")
	}

	if !key.Active() {
		return nil
	}

	if err := s.store.RevokeAPIKey(ctx, mc.MerchantID, keyID); err != nil {
		log.Error().Err(err).Str("key_id", keyID.String()).Msg("failed to revoke API key")
		return NewInternal("INTERNAL_ERROR", "Failed to revoke API key")
	}
	return nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

// redactKey keeps the first few and last few characters only.
func redactKey(rawKey string) string {
	if len(rawKey) < 14 {
		return "..."
	}
	return rawKey[:10] + "..." + rawKey[len(rawKey)-4:]
}
