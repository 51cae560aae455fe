// Package redis provides a Redis-backed Store for multi-process deployments.
//
// Each record is stored as JSON under one key; a per-namespace list tracks
// insertion order. Put writes both in a single MULTI/EXEC pipeline, so a
// record is never observable in a partially written state. Concurrent Puts to
// the same record race under last-write-wins, which is the documented store
// contract.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keepsake-ai/keepsake-go-sdk/store"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379").
	URL string

	// Prefix namespaces every key this store writes. Default: "keepsake:".
	Prefix string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
}

// Store implements store.Store on go-redis/v9.
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// New creates a Redis-backed store and verifies connectivity.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "keepsake:"
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client, prefix: opts.Prefix, now: time.Now}, nil
}

func (s *Store) recordKey(ns store.Namespace, id string) string {
	return fmt.Sprintf("%srecord:%s:%s:%s", s.prefix, ns.OwnerID, ns.Kind, id)
}

func (s *Store) indexKey(ns store.Namespace) string {
	return fmt.Sprintf("%sindex:%s:%s", s.prefix, ns.OwnerID, ns.Kind)
}

// Get retrieves a record by namespace and id.
func (s *Store) Get(ctx context.Context, ns store.Namespace, id string) (*store.Record, error) {
	if !ns.Valid() || id == "" {
		return nil, store.ErrInvalidKey
	}

	data, err := s.client.Get(ctx, s.recordKey(ns, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s/%s: %w", ns, id, err)
	}
	return &rec, nil
}

// Put upserts a record, preserving CreatedAt when the record already exists.
func (s *Store) Put(ctx context.Context, ns store.Namespace, id string, value map[string]any) (*store.Record, error) {
	if !ns.Valid() || id == "" {
		return nil, store.ErrInvalidKey
	}

	now := s.now()
	rec := &store.Record{
		Namespace: ns,
		ID:        id,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := s.Get(ctx, ns, id)
	isNew := false
	switch {
	case err == nil:
		rec.CreatedAt = existing.CreatedAt
	case errors.Is(err, store.ErrNotFound):
		isNew = true
	default:
		return nil, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s/%s: %w", ns, id, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(ns, id), data, 0)
		if isNew {
			pipe.RPush(ctx, s.indexKey(ns), id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return rec.Clone(), nil
}

// Search returns all records in the namespace in insertion order.
func (s *Store) Search(ctx context.Context, ns store.Namespace) ([]*store.Record, error) {
	if !ns.Valid() {
		return nil, store.ErrInvalidKey
	}

	ids, err := s.client.LRange(ctx, s.indexKey(ns), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(ns, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	out := make([]*store.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Record deleted out of band; skip the stale index entry.
			continue
		}
		var rec store.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record %s/%s: %w", ns, ids[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Delete removes a record and its index entry.
func (s *Store) Delete(ctx context.Context, ns store.Namespace, id string) error {
	if !ns.Valid() || id == "" {
		return store.ErrInvalidKey
	}

	deleted, err := s.client.Del(ctx, s.recordKey(ns, id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if deleted == 0 {
		return store.ErrNotFound
	}
	if err := s.client.LRem(ctx, s.indexKey(ns), 0, id).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
