package store

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"eris/internal/eris"
)

// Cache is a read-through block cache over another store. Blocks are
// immutable and verified against their references by readers, so a
// cached entry never goes stale.
type Cache struct {
	inner eris.Store
	lru   *lru.Cache[eris.Reference, []byte]
}

var _ eris.Store = (*Cache)(nil)

// NewCache wraps inner with an LRU holding up to size blocks.
func NewCache(inner eris.Store, size int) (*Cache, error) {
	c, err := lru.New[eris.Reference, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, lru: c}, nil
}

func (c *Cache) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	if block, ok := c.lru.Get(ref); ok {
		return slices.Clone(block), nil
	}
	block, err := c.inner.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.lru.Add(ref, block)
	return slices.Clone(block), nil
}

func (c *Cache) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	if err := c.inner.Put(ctx, ref, block); err != nil {
		return err
	}
	c.lru.Add(ref, slices.Clone(block))
	return nil
}

// Unwrap returns the store the cache fronts.
func (c *Cache) Unwrap() eris.Store { return c.inner }

func (c *Cache) Close() error {
	c.lru.Purge()
	return c.inner.Close()
}
