package security

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter allows each client a fixed number of attempts per window.
// It guards admin login and registration code entry against guessing.
type RateLimiter struct {
	mu        sync.Mutex
	rate      int
	window    time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	remaining   int
	windowStart time.Time
}

// NewRateLimiter allows rate requests per client in every window
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rate:    rate,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow spends one attempt for client and reports whether any were left
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.buckets[client]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		b = &bucket{remaining: rl.rate, windowStart: now}
		rl.buckets[client] = b
	}
	if b.remaining == 0 {
		return false
	}
	b.remaining--
	return true
}

// sweep drops buckets idle for two windows, at most once per window
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	for client, b := range rl.buckets {
		if now.Sub(b.windowStart) > 2*rl.window {
			delete(rl.buckets, client)
		}
	}
	rl.lastSweep = now
}

// GetClientIP returns the client address, preferring the first X-Forwarded-For
// hop and X-Real-IP set by a reverse proxy.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
