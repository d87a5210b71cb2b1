package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter gates inbound requests by source key. Webhook ingress keys on
// the caller's remote address; a nil limiter admits everything.
type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts requests per key inside a fixed window. Counts
// reset when the window elapses, so a burst straddling a boundary can
// briefly see up to twice the limit; good enough for webhook abuse control.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]windowCount
}

type windowCount struct {
	seen      int
	expiresAt time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, now func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		windows: make(map[string]windowCount),
	}
}

// Allow reports whether one more request from key fits in its current
// window. Blank keys share the anonymous bucket.
func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	ts := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || ts.After(w.expiresAt) {
		l.windows[key] = windowCount{seen: 1, expiresAt: ts.Add(l.window)}
		l.evictStale(ts)
		return true
	}
	if w.seen >= l.limit {
		return false
	}
	w.seen++
	l.windows[key] = w
	return true
}

// evictStale drops elapsed windows so one-off sources do not accumulate.
// Callers hold l.mu.
func (l *fixedWindowLimiter) evictStale(ts time.Time) {
	for key, w := range l.windows {
		if ts.After(w.expiresAt) {
			delete(l.windows, key)
		}
	}
}
