package access

import (
	"context"
	"sync"
)

// Key identifies one permission decision.
type Key struct {
	Subject  string
	Resource string
	Action   string
}

// Cache memoizes permission checks for the lifetime of its owner (an HTTP
// request or a WebSocket session). A nil *Cache never caches.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]bool
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]bool)}
}

// Check returns the cached decision or calls load. Errors are not cached.
func (c *Cache) Check(ctx context.Context, key Key, load func(ctx context.Context) (bool, error)) (bool, error) {
	if c == nil {
		return load(ctx)
	}

	c.mu.Lock()
	allowed, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return allowed, nil
	}

	allowed, err := load(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.entries[key] = allowed
	c.mu.Unlock()
	return allowed, nil
}

// InvalidateResource drops every decision about resource.
func (c *Cache) InvalidateResource(resource string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Resource == resource {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[Key]bool)
	c.mu.Unlock()
}

type ctxKey struct{}

func WithCache(ctx context.Context, c *Cache) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) *Cache {
	c, _ := ctx.Value(ctxKey{}).(*Cache)
	return c
}
