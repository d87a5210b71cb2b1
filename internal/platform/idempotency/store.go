package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTTL is the default retention for processed-event markers.
const DefaultTTL = 24 * time.Hour

// Store remembers processed event keys so at-least-once webhook deliveries
// are applied at most once.
type Store interface {
	// Seen atomically records the key and reports whether it had already
	// been recorded within the TTL window.
	Seen(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error)
}

// Key normalises an arbitrary event identifier into a fixed-size store key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strings.TrimSpace(part)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
