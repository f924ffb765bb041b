package refcache

import (
	"context"
	"sync"

	"github.com/rcarls/ghast/internal/indieweb"
)

// MemoryCache keeps documents in process. Values are deep copied on the way
// in and out so callers cannot alias cached state.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]indieweb.Properties
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]indieweb.Properties)}
}

// Get implements indieweb.ReferenceCache.
func (c *MemoryCache) Get(_ context.Context, kind indieweb.ReferenceKind, rawURL string) (indieweb.Properties, bool, error) {
	key, err := entryKey(kind, rawURL)
	if err != nil {
		return nil, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(), true, nil
}

// Put implements indieweb.ReferenceCache.
func (c *MemoryCache) Put(_ context.Context, kind indieweb.ReferenceKind, rawURL string, doc indieweb.Properties) error {
	key, err := entryKey(kind, rawURL)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = doc.Clone()
	return nil
}

// Clear implements indieweb.ReferenceCache.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]indieweb.Properties)
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
