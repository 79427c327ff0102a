package pagecache

import (
	"encoding/json"
	"time"
)

// Entry is a cached page.
type Entry struct {
	// Items is the JSON encoded page items.
	Items json.RawMessage `json:"items"`

	// Total is the source total reported with the page.
	Total int64 `json:"total"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the page was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
