package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/age-assertion-service/internal/store"
)

type contextKey string

const merchantContextKey contextKey = "merchant"

// MerchantContext identifies the authenticated caller. KeyHash is the digest
// of the credential used on this request; the revoke handler compares it to
// prevent a merchant from locking itself out.
type MerchantContext struct {
	MerchantID  uuid.UUID
	ExternalRef string
	Name        string
	KeyID       uuid.UUID
	KeyHash     string
}

// GetMerchant extracts the authenticated merchant from the request context.
func GetMerchant(ctx context.Context) *MerchantContext {
	mc, _ := ctx.Value(merchantContextKey).(*MerchantContext)
	return mc
}

// APIKeyAuth returns middleware that authenticates requests via Bearer token.
// Revoked and unknown keys produce the same response; the caller learns
// nothing about whether the key ever existed.
func APIKeyAuth(s store.APIKeyStore, limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attemptKey := clientIPKey(r, "api_key")
			if limiter != nil && !limiter.allow(attemptKey) {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many authentication failures")
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				respondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
				return
			}

			keyHash := SHA256Hex(token)
			apiKey, merchant, err := s.GetActiveAPIKeyByHash(r.Context(), keyHash)
			if err != nil {
				// Only a definitive no-match is a credential failure. A
				// storage outage is a 5xx and must not count against the
				// caller's attempt budget.
				if !errors.Is(err, pgx.ErrNoRows) {
					log.Error().Err(err).Msg("api key lookup failed")
					respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to authenticate request")
					return
				}
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				respondError(w, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
				return
			}

			// Best effort: a failed last-used update must not fail auth.
			if err := s.TouchAPIKey(r.Context(), apiKey.ID); err != nil {
				log.Warn().Err(err).Str("key_id", apiKey.ID.String()).Msg("failed to record key last-used time")
			}

			if limiter != nil {
				limiter.registerSuccess(attemptKey)
			}
			mc := &MerchantContext{
				MerchantID:  merchant.ID,
				ExternalRef: merchant.ExternalRef,
				Name:        merchant.Name,
				KeyID:       apiKey.ID,
				KeyHash:     apiKey.KeyHash,
			}
			ctx := context.WithValue(r.Context(), merchantContextKey, mc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// SHA256Hex returns the hex-encoded SHA-256 hash of the input.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}
