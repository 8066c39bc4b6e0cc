package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RealIP returns the client address: CF-Connecting-IP, then the first hop of
// X-Forwarded-For, then X-Real-IP, then the host part of RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts hits per key in fixed windows. The zero value is not
// usable; call NewRateLimiter.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock overrides time.Now.
func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow records a hit for key. When the key is over limit it returns false
// and the time left until its window resets.
func (rl *RateLimiter) Allow(key string, limit int, per time.Duration) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		rl.windows[key] = &window{count: 1, resetAt: now.Add(per)}
		return true, 0
	}
	w.count++
	if w.count > limit {
		return false, w.resetAt.Sub(now)
	}
	return true, 0
}

// Cleanup drops windows that have already reset.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	n := 0
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
			n++
		}
	}
	return n
}

// RateLimit rejects requests over limit per window with 429 and Retry-After.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, per time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry := limiter.Allow(keyFunc(r), limit, per)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
