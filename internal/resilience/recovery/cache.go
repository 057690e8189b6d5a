package recovery

import (
	"context"
	"sync"
	"time"
)

// CachedResponse is a snapshot of a successful response, kept around so reads
// can survive a dependency outage.
type CachedResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"stored_at"`
}

// ResponseCache stores successful read responses for later fallback use.
type ResponseCache interface {
	Put(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error
	// Get returns the cached response and whether one was found.
	Get(ctx context.Context, key string) (CachedResponse, bool, error)
}

// CacheKey derives the fallback cache key for a request. Identity is not part
// of the key: cached payloads are only captured for routes whose reads are
// not identity-scoped.
func CacheKey(method, path string) string {
	return "fb:" + method + ":" + path
}

type memoryEntry struct {
	resp      CachedResponse
	expiresAt time.Time
}

// MemoryCache is an in-process ResponseCache for tests and single-instance
// deployments.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// NewMemoryCacheWithClock creates a cache with an injected clock.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	c := NewMemoryCache()
	c.now = now
	return c
}

func (c *MemoryCache) Put(_ context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{resp: resp, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (CachedResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return CachedResponse{}, false, nil
	}
	if !e.expiresAt.After(c.now()) {
		delete(c.entries, key)
		return CachedResponse{}, false, nil
	}
	return e.resp, true, nil
}
