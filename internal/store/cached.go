package store

import (
	"context"
	"sync"

	"golang-redflag-service/pkg/errors"

	"github.com/dgraph-io/ristretto"
)

// Cached is a read-through cache in front of another CaseStore.
//
// Every key carries a generation bumped on Put. A Get that raced with a Put
// only fills the cache if the generation it started with is still current,
// so a stale body is never cached after the write that replaced it.
type Cached struct {
	next  CaseStore
	cache *ristretto.Cache

	mu  sync.Mutex
	gen map[string]uint64
}

// NewCached wraps next with a cache holding up to maxItems documents.
func NewCached(next CaseStore, maxItems int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "store.cache_items", maxItems, err)
	}
	return &Cached{
		next:  next,
		cache: cache,
		gen:   make(map[string]uint64),
	}, nil
}

func (c *Cached) Get(ctx context.Context, caseID string, kind Kind) ([]byte, error) {
	k := key(caseID, kind)
	if v, ok := c.cache.Get(k); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}

	c.mu.Lock()
	gen := c.gen[k]
	c.mu.Unlock()

	body, err := c.next.Get(ctx, caseID, kind)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen[k] == gen {
		c.cache.Set(k, append([]byte(nil), body...), 1)
	}
	c.mu.Unlock()

	return body, nil
}

func (c *Cached) Put(ctx context.Context, caseID string, kind Kind, body []byte) error {
	if err := c.next.Put(ctx, caseID, kind, body); err != nil {
		return err
	}
	k := key(caseID, kind)
	c.mu.Lock()
	c.gen[k]++
	c.cache.Del(k)
	c.mu.Unlock()
	return nil
}

func (c *Cached) Close() error {
	c.cache.Close()
	return c.next.Close()
}
