// Package cached decorates any Store with a ristretto read cache for Get.
//
// Search always hits the inner store: collection listings change on every
// insert and caching them would trade correctness for little gain, since the
// assembler reads them once per turn.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/keepsake-ai/keepsake-go-sdk/store"
)

// Store wraps an inner store with a record cache.
type Store struct {
	inner store.Store
	cache *ristretto.Cache
}

// New creates a cached store holding up to maxRecords records.
func New(inner store.Store, maxRecords int64) (*Store, error) {
	if maxRecords <= 0 {
		maxRecords = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxRecords * 10,
		MaxCost:     maxRecords,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Store{inner: inner, cache: cache}, nil
}

func cacheKey(ns store.Namespace, id string) string {
	return ns.String() + "/" + id
}

// Get returns the cached record when present, otherwise reads through.
func (s *Store) Get(ctx context.Context, ns store.Namespace, id string) (*store.Record, error) {
	if v, ok := s.cache.Get(cacheKey(ns, id)); ok {
		return v.(*store.Record).Clone(), nil
	}

	rec, err := s.inner.Get(ctx, ns, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey(ns, id), rec.Clone(), 1)
	return rec, nil
}

// Put writes through and refreshes the cache entry.
func (s *Store) Put(ctx context.Context, ns store.Namespace, id string, value map[string]any) (*store.Record, error) {
	rec, err := s.inner.Put(ctx, ns, id, value)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey(ns, id), rec.Clone(), 1)
	return rec, nil
}

// Search always reads from the inner store.
func (s *Store) Search(ctx context.Context, ns store.Namespace) ([]*store.Record, error) {
	return s.inner.Search(ctx, ns)
}

// Delete removes the record and drops it from the cache.
func (s *Store) Delete(ctx context.Context, ns store.Namespace, id string) error {
	if err := s.inner.Delete(ctx, ns, id); err != nil {
		return err
	}
	s.cache.Del(cacheKey(ns, id))
	return nil
}

// Close releases the cache and the inner store.
func (s *Store) Close() error {
	s.cache.Close()
	return s.inner.Close()
}

// Wait blocks until pending cache writes are applied. Intended for tests.
func (s *Store) Wait() {
	s.cache.Wait()
}
