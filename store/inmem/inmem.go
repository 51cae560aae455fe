// Package inmem provides the in-process Store backend used for local
// development and tests.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/keepsake-ai/keepsake-go-sdk/store"
)

// Store is a mutex-guarded in-memory record store. Values are deep-copied on
// the way in and out so callers can never mutate stored state through a
// returned record.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	// now is swappable for tests.
	now func() time.Time
}

type bucket struct {
	order   []string
	records map[string]*store.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Get retrieves a record by namespace and id.
func (s *Store) Get(ctx context.Context, ns store.Namespace, id string) (*store.Record, error) {
	if !ns.Valid() || id == "" {
		return nil, store.ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[ns.String()]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec, ok := b.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// Put upserts a record, replacing the whole value atomically.
func (s *Store) Put(ctx context.Context, ns store.Namespace, id string, value map[string]any) (*store.Record, error) {
	if !ns.Valid() || id == "" {
		return nil, store.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ns.String()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{records: make(map[string]*store.Record)}
		s.buckets[key] = b
	}

	now := s.now()
	rec := &store.Record{
		Namespace: ns,
		ID:        id,
		Value:     store.CloneValue(value).(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := b.records[id]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		b.order = append(b.order, id)
	}
	b.records[id] = rec

	return rec.Clone(), nil
}

// Search returns all records in the namespace in insertion order.
func (s *Store) Search(ctx context.Context, ns store.Namespace) ([]*store.Record, error) {
	if !ns.Valid() {
		return nil, store.ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[ns.String()]
	if !ok {
		return nil, nil
	}
	out := make([]*store.Record, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.records[id].Clone())
	}
	return out, nil
}

// Delete removes a record by namespace and id.
func (s *Store) Delete(ctx context.Context, ns store.Namespace, id string) error {
	if !ns.Valid() || id == "" {
		return store.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[ns.String()]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := b.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(b.records, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
