package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterMapResetSize caps how many per-client limiters are held before the
// cleanup pass drops them all. Filtering sessions are long-lived, so the set
// of clients stays small in practice; the cap only guards against address
// churn.
const limiterMapResetSize = 10000

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(addr string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.limiters[addr]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok = rl.limiters[addr]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[addr] = limiter
	return limiter
}

// Allow reports whether a request from the given address may proceed.
func (rl *RateLimiter) Allow(addr string) bool {
	return rl.limiterFor(addr).Allow()
}

// Cleanup drops the limiter map once it grows past the reset size. Buckets
// refill within a second, so a dropped client loses nothing but its burst
// debt.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > limiterMapResetSize {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// RateLimit returns middleware rejecting requests over the per-address
// budget with 429 and a Retry-After hint.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// RealIP runs earlier in the chain, so RemoteAddr is already
			// the client address when X-Real-IP is absent.
			addr := r.Header.Get("X-Real-IP")
			if addr == "" {
				addr = r.RemoteAddr
			}

			if !limiter.Allow(addr) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
