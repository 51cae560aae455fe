// Package store defines namespaced, versioned key-value persistence for
// memory records, plus the contract every backend must honor.
//
// A namespace is (owner, kind); it never crosses owners. Put is an atomic
// whole-value upsert with last-write-wins semantics at record granularity —
// field-level merging happens in the extractor before Put is ever called.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/keepsake-ai/keepsake-go-sdk/schema"
)

// Common errors returned by store operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrInvalidKey is returned when a namespace or record id is empty.
	ErrInvalidKey = errors.New("store: invalid key")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// It is a hard failure for the single call that hit it, never for the
	// turn as a whole.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Namespace scopes all records for one owner and one memory kind.
type Namespace struct {
	OwnerID string
	Kind    schema.Kind
}

func (n Namespace) String() string {
	return n.OwnerID + "/" + string(n.Kind)
}

// Valid reports whether the namespace can address records.
func (n Namespace) Valid() bool {
	return n.OwnerID != "" && n.Kind != ""
}

// Record is one stored memory value. Value is always a complete, validated
// document; a record is never partially written.
type Record struct {
	Namespace Namespace      `json:"namespace"`
	ID        string         `json:"id"`
	Value     map[string]any `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the record, detaching Value from any shared
// state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Value = CloneValue(r.Value).(map[string]any)
	return &out
}

// CloneValue deep-copies a decoded JSON value (maps, slices, scalars).
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return val
	}
}

// Store is the persistence contract for memory records.
//
// Guarantees required of every implementation:
//   - Put is atomic per (namespace, id): a whole-value replace that preserves
//     the original CreatedAt when the record already exists.
//   - Search returns records in insertion order.
//   - No operation ever observes a partially written value.
//
// Cross-namespace transactions are deliberately not part of the contract.
type Store interface {
	// Get retrieves a record. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, ns Namespace, id string) (*Record, error)

	// Put upserts a record with the given full value and returns the stored
	// record. UpdatedAt is set; CreatedAt is preserved for existing records.
	Put(ctx context.Context, ns Namespace, id string, value map[string]any) (*Record, error)

	// Search returns all records in the namespace in insertion order.
	Search(ctx context.Context, ns Namespace) ([]*Record, error)

	// Delete removes a record. Deletion is an explicit operation; nothing in
	// the per-turn pipeline deletes records automatically.
	Delete(ctx context.Context, ns Namespace, id string) error

	// Close releases backend resources.
	Close() error
}
