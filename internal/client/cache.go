package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// Cache stores generation responses keyed by request fingerprint. All
// implementations must be safe for concurrent use by many sessions.
type Cache interface {
	Get(ctx context.Context, key string) (provider.Response, bool)
	Set(ctx context.Context, key string, resp provider.Response)
}

// Fingerprint hashes the semantically relevant request fields into a stable
// cache key. Provider and model overrides are deliberately excluded: the
// same logical request served by a different backend is still the same
// request.
func Fingerprint(req provider.Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "prompt:%s|max_tokens:%d|temperature:%g|system:%s",
		req.Prompt, req.MaxTokens, req.Temperature, req.SystemPrompt)
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	resp      provider.Response
	expiresAt time.Time
}

// MemoryCache is a TTL-bounded in-process cache. Expired entries are evicted
// lazily on read and wholesale when the entry count passes maxEntries.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &MemoryCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (provider.Response, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return provider.Response{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return provider.Response{}, false
	}
	return entry.resp, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, resp provider.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked()
		// Still full after eviction: drop everything rather than grow
		// without bound. The cache is an optimization, not a store.
		if len(c.entries) >= c.maxEntries {
			c.entries = make(map[string]cacheEntry)
		}
	}

	c.entries[key] = cacheEntry{
		resp:      resp,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *MemoryCache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len reports the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
