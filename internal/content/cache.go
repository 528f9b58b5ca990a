package content

import (
	"context"
	"sync"
	"time"

	"glot/internal/l10n"
)

type cacheEntry struct {
	allow   l10n.Allowlist
	expires time.Time
}

// CachedSource wraps a Source with a TTL cache over allowlist lookups.
// Content and locale reads pass through uncached; generation state is too
// staleness-sensitive to cache in process.
type CachedSource struct {
	Source

	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCachedSource wraps src with an allowlist cache.
func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		Source:  src,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Allowlist serves from cache within the TTL.
func (c *CachedSource) Allowlist(ctx context.Context, widgetType string) (l10n.Allowlist, error) {
	c.mu.Lock()
	entry, ok := c.entries[widgetType]
	now := c.now()
	c.mu.Unlock()
	if ok && entry.expires.After(now) {
		return entry.allow, nil
	}

	allow, err := c.Source.Allowlist(ctx, widgetType)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[widgetType] = cacheEntry{allow: allow, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return allow, nil
}

// Invalidate drops the cached allowlist for one widget type.
func (c *CachedSource) Invalidate(widgetType string) {
	c.mu.Lock()
	delete(c.entries, widgetType)
	c.mu.Unlock()
}
