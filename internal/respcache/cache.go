// Package respcache provides an in-memory TTL cache for upstream API
// responses, keyed by a canonical request signature so that semantically
// identical requests collide to the same entry.
package respcache

import (
	"net/url"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Default TTLs for the two endpoint classes. Occurrence pages are stable
// enough to keep for a while; suggest/search lookups are refetched sooner to
// balance freshness against duplicate-keystroke load.
const (
	OccurrenceTTL = 15 * time.Minute
	LookupTTL     = 2 * time.Minute
)

// Cache is a goroutine-safe TTL key-value store scoped to the process
// lifetime. Expired entries are lazily evicted on read.
type Cache struct {
	store *gocache.Cache
}

// New creates an empty response cache.
func New() *Cache {
	return &Cache{
		store: gocache.New(OccurrenceTTL, 5*time.Minute),
	}
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	return c.store.Get(key)
}

// Set stores value under key with the given TTL, overwriting any prior entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of entries, including not-yet-evicted expired
// ones.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// CanonicalKey builds a deterministic cache key from an endpoint prefix and
// request parameters. Keys are sorted before serialization so parameter
// insertion order does not matter, and the prefix separator keeps different
// endpoint classes from colliding.
func CanonicalKey(prefix string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('|')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		// Values are escaped individually so a value containing the join
		// separator cannot collide with a genuinely multi-valued parameter.
		for j, v := range params[k] {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}
