package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateLimiter implements per-merchant sliding window rate limiting with
// service-wide limits from configuration.
type RateLimiter struct {
	mu          sync.Mutex
	counters    map[uuid.UUID]*window
	maxRequests int
	windowSize  time.Duration
	lastCleanup time.Time
}

type window struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

const (
	cleanupInterval    = 5 * time.Minute
	expiredWindowGrace = 10 * time.Minute
	staleEntryTTL      = 24 * time.Hour
)

// NewRateLimiter creates a new in-memory rate limiter.
func NewRateLimiter(maxRequests, windowSeconds int) *RateLimiter {
	return &RateLimiter{
		counters:    make(map[uuid.UUID]*window),
		maxRequests: maxRequests,
		windowSize:  time.Duration(windowSeconds) * time.Second,
		lastCleanup: time.Now(),
	}
}

// Allow checks if the merchant is within its rate limit.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) Allow(merchantID uuid.UUID) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	w, exists := rl.counters[merchantID]
	if !exists || now.After(w.resetAt) {
		rl.counters[merchantID] = &window{
			count:    1,
			resetAt:  now.Add(rl.windowSize),
			lastSeen: now,
		}
		rl.cleanupLocked(now)
		return true, rl.maxRequests - 1, now.Add(rl.windowSize)
	}

	w.lastSeen = now
	resetAt := w.resetAt

	if w.count >= rl.maxRequests {
		rl.cleanupLocked(now)
		return false, 0, resetAt
	}

	w.count++
	rl.cleanupLocked(now)
	return true, rl.maxRequests - w.count, resetAt
}

// RateLimitMiddleware returns middleware that enforces per-merchant limits.
// It must run after APIKeyAuth.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mc := GetMerchant(r.Context())
			if mc == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, resetAt := rl.Allow(mc.MerchantID)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}

	for id, w := range rl.counters {
		if now.Sub(w.lastSeen) > staleEntryTTL || now.After(w.resetAt.Add(expiredWindowGrace)) {
			delete(rl.counters, id)
		}
	}

	rl.lastCleanup = now
}
