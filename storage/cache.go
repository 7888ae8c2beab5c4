package storage

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// CachedStore keeps recently read values of the wrapped Store in an LRU cache.
// Writes go through to the store and refresh the cache once they succeed.
type CachedStore struct {
	Store
	cache *lru.Cache
}

// NewCachedStore wraps store with a cache of at most size entries.
// size should be > 0, or an error returned.
func NewCachedStore(store Store, size int) (*CachedStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "new lru cache")
	}
	return &CachedStore{Store: store, cache: cache}, nil
}

func (c *CachedStore) Get(key []byte) ([]byte, error) {
	if v, ok := c.cache.Get(string(key)); ok {
		return v.([]byte), nil
	}
	v, err := c.Store.Get(key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(string(key), v)
	return v, nil
}

func (c *CachedStore) Has(key []byte) (bool, error) {
	if _, ok := c.cache.Get(string(key)); ok {
		return true, nil
	}
	return c.Store.Has(key)
}

func (c *CachedStore) Put(key, value []byte) error {
	if err := c.Store.Put(key, value); err != nil {
		c.cache.Remove(string(key))
		return err
	}
	c.cache.Add(string(key), value)
	return nil
}

func (c *CachedStore) Delete(key []byte) error {
	c.cache.Remove(string(key))
	return c.Store.Delete(key)
}

func (c *CachedStore) NewBatch() Batch {
	return &cachedBatch{Batch: c.Store.NewBatch(), cache: c.cache}
}

type cachedOp struct {
	key   string
	value []byte
	del   bool
}

type cachedBatch struct {
	Batch
	cache *lru.Cache
	ops   []cachedOp
}

func (b *cachedBatch) Put(key, value []byte) {
	b.Batch.Put(key, value)
	b.ops = append(b.ops, cachedOp{key: string(key), value: value})
}

func (b *cachedBatch) Delete(key []byte) {
	b.Batch.Delete(key)
	b.ops = append(b.ops, cachedOp{key: string(key), del: true})
}

func (b *cachedBatch) Write() error {
	if err := b.Batch.Write(); err != nil {
		for _, op := range b.ops {
			b.cache.Remove(op.key)
		}
		return err
	}
	for _, op := range b.ops {
		if op.del {
			b.cache.Remove(op.key)
		} else {
			b.cache.Add(op.key, op.value)
		}
	}
	b.ops = nil
	return nil
}
