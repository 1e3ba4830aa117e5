package embeddings

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Key identifies a loaded embedder.
type Key struct {
	Mode  Mode
	Model string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Mode, k.Model)
}

// Loader builds an embedder for a key. It is called at most once per key
// at a time; failed loads are retried on the next lookup.
type Loader func(ctx context.Context, key Key) (Embedder, error)

// Cache holds loaded embedders for the lifetime of the process.
// Lookups of populated keys take no lock; concurrent misses on the same
// key share a single load.
type Cache struct {
	entries sync.Map
	group   singleflight.Group
	load    Loader
}

// NewCache creates a cache that populates misses with load.
func NewCache(load Loader) *Cache {
	return &Cache{load: load}
}

// Get returns the embedder for key, loading it on first use.
func (c *Cache) Get(ctx context.Context, key Key) (Embedder, error) {
	if v, ok := c.entries.Load(key); ok {
		return v.(Embedder), nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if v, ok := c.entries.Load(key); ok {
			return v, nil
		}
		e, err := c.load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.entries.Store(key, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Embedder), nil
}

// Len reports the number of loaded embedders.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
