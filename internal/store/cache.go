package store

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// lookupCache memoises catalog lookups for the lifetime of a store. Concurrent
// misses for the same key share one load. Failed loads are not cached.
type lookupCache struct {
	mu    sync.RWMutex
	items map[string]string
	group singleflight.Group
}

func newLookupCache() *lookupCache {
	return &lookupCache{items: make(map[string]string)}
}

func (c *lookupCache) get(ctx context.Context, key string, load func(context.Context) (string, error)) (string, error) {
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.items[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (c *lookupCache) clear() {
	c.mu.Lock()
	c.items = make(map[string]string)
	c.mu.Unlock()
}

func (c *lookupCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
