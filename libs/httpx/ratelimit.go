package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-process fixed-window limiter keyed by client address.
// It is the fallback when no Redis is configured.
type RateLimiter struct {
	limit     int
	window    time.Duration
	now       func() time.Time
	mu        sync.Mutex
	windows   map[string]*clientWindow
	lastSweep time.Time
}

type clientWindow struct {
	count int
	ends  time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: map[string]*clientWindow{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, retryAfter := rl.hit(clientKey(r))
			remaining := rl.limit - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if count > rl.limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter, rl.window)))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hit counts a request for key and returns the count in the current window
// together with the time left in it.
func (rl *RateLimiter) hit(key string) (int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.window {
		for k, cw := range rl.windows {
			if !now.Before(cw.ends) {
				delete(rl.windows, k)
			}
		}
		rl.lastSweep = now
	}

	cw := rl.windows[key]
	if cw == nil || !now.Before(cw.ends) {
		cw = &clientWindow{ends: now.Add(rl.window)}
		rl.windows[key] = cw
	}
	cw.count++
	return cw.count, cw.ends.Sub(now)
}

// clientKey prefers the first X-Forwarded-For hop, as set by the gateway.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
