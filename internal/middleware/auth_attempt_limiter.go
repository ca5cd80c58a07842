package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// AuthAttemptLimiter blocks clients that repeatedly fail authentication on
// either credential channel (merchant keys or the verifier secret). Keys are
// per-IP with a channel prefix so failures on one channel never block the
// other.
type AuthAttemptLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord

	maxFailures int
	window      time.Duration
	blockFor    time.Duration

	lastSweep time.Time
	sweepEach time.Duration
	staleTTL  time.Duration
}

type attemptRecord struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func NewAuthAttemptLimiter(maxFailures int, window, blockFor time.Duration) *AuthAttemptLimiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if blockFor <= 0 {
		blockFor = 15 * time.Minute
	}

	return &AuthAttemptLimiter{
		attempts:    make(map[string]*attemptRecord),
		maxFailures: maxFailures,
		window:      window,
		blockFor:    blockFor,
		lastSweep:   time.Now(),
		sweepEach:   5 * time.Minute,
		staleTTL:    24 * time.Hour,
	}
}

// allow reports whether the client may attempt authentication at all.
func (l *AuthAttemptLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	defer l.sweepLocked(now)

	rec, ok := l.attempts[key]
	if !ok {
		return true
	}

	rec.lastSeen = now
	if now.Before(rec.blockedUntil) {
		return false
	}
	l.resetIfExpiredLocked(rec, now)
	return true
}

func (l *AuthAttemptLimiter) registerFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	defer l.sweepLocked(now)

	rec, ok := l.attempts[key]
	if !ok {
		l.attempts[key] = &attemptRecord{failures: 1, windowStart: now, lastSeen: now}
		return
	}

	rec.lastSeen = now
	l.resetIfExpiredLocked(rec, now)

	rec.failures++
	if rec.failures >= l.maxFailures {
		rec.blockedUntil = now.Add(l.blockFor)
		rec.failures = 0
		rec.windowStart = now
	}
}

func (l *AuthAttemptLimiter) registerSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.attempts, key)
	l.sweepLocked(time.Now())
}

func (l *AuthAttemptLimiter) resetIfExpiredLocked(rec *attemptRecord, now time.Time) {
	if now.Sub(rec.windowStart) > l.window {
		rec.failures = 0
		rec.windowStart = now
	}
}

func (l *AuthAttemptLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.sweepEach {
		return
	}
	for key, rec := range l.attempts {
		if now.Sub(rec.lastSeen) > l.staleTTL && now.After(rec.blockedUntil) {
			delete(l.attempts, key)
		}
	}
	l.lastSweep = now
}

func clientIPKey(r *http.Request, prefix string) string {
	host := r.RemoteAddr
	if parsedHost, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = parsedHost
	}
	if host == "" {
		host = "unknown"
	}
	return prefix + ":" + host
}
