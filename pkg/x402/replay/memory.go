package replay

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	meta      Meta
	expiresAt time.Time
}

// MemoryCache is an in-process replay cache. Suitable for single-instance
// deployments; multi-instance deployments need the Redis backend so all
// instances share one consumption point.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration

	stop chan struct{}
	once sync.Once
}

// NewMemoryCache creates a memory cache whose entries expire after ttl.
// A background sweeper reclaims expired entries every sweepInterval.
func NewMemoryCache(ttl, sweepInterval time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// IsUsed reports whether the signature has an unexpired entry.
func (c *MemoryCache) IsUsed(_ context.Context, signature string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[signature]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, signature)
		return false, nil
	}
	return true, nil
}

// MarkUsed consumes the signature. Returns ErrAlreadyUsed if a live entry
// exists.
func (c *MemoryCache) MarkUsed(_ context.Context, signature string, meta Meta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.entries[signature]; ok && now.Before(entry.expiresAt) {
		return ErrAlreadyUsed
	}

	if meta.ConsumedAt.IsZero() {
		meta.ConsumedAt = now
	}
	c.entries[signature] = memoryEntry{
		meta:      meta,
		expiresAt: now.Add(c.ttl),
	}
	return nil
}

// Meta returns the consumption record for a signature, or nil if absent.
func (c *MemoryCache) Meta(_ context.Context, signature string) (*Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[signature]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	m := entry.meta
	return &m, nil
}

// Clear drops all entries.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

// Size returns the number of live entries.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	n := 0
	for _, entry := range c.entries {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}

// Close stops the background sweeper.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for sig, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, sig)
				}
			}
			c.mu.Unlock()
		}
	}
}
