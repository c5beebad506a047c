package httpapi

import (
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const authHeader = "x-auth-token"

var (
	errMissingToken = errors.New("missing auth token")
	errInvalidToken = errors.New("invalid auth token")
	errTooManyTries = errors.New("too many failed auth attempts")
)

// TokenChecker verifies the shared secret the registers present. Only the
// bcrypt hash of the secret is kept in memory.
type TokenChecker struct {
	hash []byte
}

func NewTokenChecker(secret string, cost int) (*TokenChecker, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth token is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return nil, err
	}
	return &TokenChecker{hash: hash}, nil
}

func (c *TokenChecker) Valid(token string) bool {
	token = strings.TrimSpace(token)
	if c == nil || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.hash, []byte(token)) == nil
}

func (a *API) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if a.authLimiter.Blocked(key) {
			a.writeError(w, r, http.StatusTooManyRequests, errTooManyTries)
			return
		}

		token := r.Header.Get(authHeader)
		if token == "" {
			a.authLimiter.Fail(key)
			a.writeError(w, r, http.StatusUnauthorized, errMissingToken)
			return
		}
		if !a.tokens.Valid(token) {
			a.authLimiter.Fail(key)
			a.writeError(w, r, http.StatusUnauthorized, errInvalidToken)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// attemptLimiter counts failed auth attempts per client over a sliding
// window.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Blocked(key string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, time.Now())) >= l.max
}

func (l *attemptLimiter) Fail(key string) {
	if l == nil {
		return
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = append(l.prune(key, now), now)
}

func (l *attemptLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	history := l.entries[key]
	kept := history[:0]
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.entries, key)
		return nil
	}
	l.entries[key] = kept
	return kept
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
