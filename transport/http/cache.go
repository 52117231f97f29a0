package http

import (
	"encoding/json"
	"net/url"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// responseCache keeps unwrapped payloads of cacheable reads.
// Entries only expire by TTL; writes do not invalidate them.
type responseCache struct {
	entries *gocache.Cache
}

func newResponseCache(defaultTTL time.Duration) *responseCache {
	return &responseCache{
		// no janitor goroutine; expired entries are swept on write
		entries: gocache.New(defaultTTL, 0),
	}
}

func (c *responseCache) get(key string) (json.RawMessage, bool) {
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	data, ok := value.(json.RawMessage)
	return data, ok
}

func (c *responseCache) set(key string, data json.RawMessage, ttl time.Duration) {
	c.entries.DeleteExpired()
	c.entries.Set(key, data, ttl)
}

func (c *responseCache) flush() {
	c.entries.Flush()
}

// cacheKey builds a key from the path and the query parameters with keys
// and values sorted, so parameter order does not matter
func cacheKey(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	normalized := make(url.Values, len(query))
	for k, values := range query {
		sorted := slices.Clone(values)
		slices.Sort(sorted)
		normalized[k] = sorted
	}
	return path + "?" + normalized.Encode()
}
