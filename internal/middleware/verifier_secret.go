package middleware

import (
	"crypto/subtle"
	"net/http"
)

// VerifierSecretHeader carries the shared secret on the verifier callback
// channel. This is a system-to-system credential, not a merchant key.
const VerifierSecretHeader = "X-Verifier-Secret"

// VerifierSecretAuth returns middleware that authenticates verifier callbacks
// against the configured shared secret. The comparison is constant-time to
// avoid timing side-channels.
func VerifierSecretAuth(secret string, limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attemptKey := clientIPKey(r, "verifier")
			if limiter != nil && !limiter.allow(attemptKey) {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many authentication failures")
				return
			}

			presented := r.Header.Get(VerifierSecretHeader)
			if presented == "" {
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				respondError(w, http.StatusUnauthorized, "MISSING_VERIFIER_SECRET", "Missing verifier secret")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				respondError(w, http.StatusUnauthorized, "INVALID_VERIFIER_SECRET", "Invalid verifier secret")
				return
			}

			if limiter != nil {
				limiter.registerSuccess(attemptKey)
			}
			next.ServeHTTP(w, r)
		})
	}
}
