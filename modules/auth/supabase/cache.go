package supabase

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/flemzord/substackulous/internal/auth"
)

type cacheEntry struct {
	user    auth.User
	expires time.Time
}

// tokenCache remembers resolved tokens for a short time. Keys are token
// digests so raw tokens are not held in memory.
type tokenCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[[sha256.Size]byte]cacheEntry
	now     func() time.Time
}

func newTokenCache(ttl time.Duration, maxEntries int) *tokenCache {
	return &tokenCache{
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[[sha256.Size]byte]cacheEntry),
		now:     time.Now,
	}
}

func (c *tokenCache) get(token string) (auth.User, bool) {
	if c.ttl <= 0 {
		return auth.User{}, false
	}
	key := sha256.Sum256([]byte(token))
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return auth.User{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return auth.User{}, false
	}
	return e.user, true
}

func (c *tokenCache) put(token string, u auth.User) {
	if c.ttl <= 0 {
		return
	}
	key := sha256.Sum256([]byte(token))
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		// Still full: start over rather than track recency.
		if len(c.entries) >= c.max {
			clear(c.entries)
		}
	}
	c.entries[key] = cacheEntry{user: u, expires: now.Add(c.ttl)}
}

func (c *tokenCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
