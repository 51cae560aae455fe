package inmem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/keepsake-ai/keepsake-go-sdk/schema"
	"github.com/keepsake-ai/keepsake-go-sdk/store"
	"github.com/keepsake-ai/keepsake-go-sdk/store/inmem"
)

var testNS = store.Namespace{OwnerID: "user1", Kind: schema.KindTodo}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	put, err := s.Put(ctx, testNS, "rec1", map[string]any{"task": "buy milk", "status": "not started"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if put.CreatedAt.IsZero() || put.UpdatedAt.IsZero() {
		t.Error("Put should set timestamps")
	}

	got, err := s.Get(ctx, testNS, "rec1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value["task"] != "buy milk" {
		t.Errorf("Got wrong value: %v", got.Value)
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	_, err := s.Get(ctx, testNS, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPutPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	first, err := s.Put(ctx, testNS, "rec1", map[string]any{"task": "one"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	second, err := s.Put(ctx, testNS, "rec1", map[string]any{"task": "two"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Upsert changed CreatedAt: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Value["task"] != "two" {
		t.Errorf("Upsert should replace the whole value, got %v", second.Value)
	}
}

func TestSearchInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	for _, id := range []string{"c", "a", "b"} {
		if _, err := s.Put(ctx, testNS, id, map[string]any{"task": id}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	// Updating an existing record must not change its position.
	if _, err := s.Put(ctx, testNS, "c", map[string]any{"task": "c2"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	records, err := s.Search(ctx, testNS)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	var ids []string
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	want := []string{"c", "a", "b"}
	if len(ids) != len(want) {
		t.Fatalf("Wrong record count: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Wrong order: got %v, want %v", ids, want)
		}
	}
}

func TestSearchNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	otherOwner := store.Namespace{OwnerID: "user2", Kind: schema.KindTodo}
	otherKind := store.Namespace{OwnerID: "user1", Kind: schema.KindProfile}

	if _, err := s.Put(ctx, testNS, "rec1", map[string]any{"task": "mine"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Put(ctx, otherOwner, "rec1", map[string]any{"task": "theirs"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Put(ctx, otherKind, "p", map[string]any{"name": "Dana"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	records, err := s.Search(ctx, testNS)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 1 || records[0].Value["task"] != "mine" {
		t.Errorf("Namespace leaked: %v", records)
	}
}

func TestReturnedRecordsAreDetached(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	value := map[string]any{"task": "original", "solutions": []any{"a"}}
	if _, err := s.Put(ctx, testNS, "rec1", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Mutating the caller's map after Put must not affect stored state.
	value["task"] = "mutated"

	got, err := s.Get(ctx, testNS, "rec1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value["task"] != "original" {
		t.Error("Stored value shares memory with caller's map")
	}

	// Mutating a returned record must not affect stored state either.
	got.Value["task"] = "mutated again"
	got.Value["solutions"].([]any)[0] = "changed"

	again, err := s.Get(ctx, testNS, "rec1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Value["task"] != "original" || again.Value["solutions"].([]any)[0] != "a" {
		t.Errorf("Returned record shares memory with stored state: %v", again.Value)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	if _, err := s.Put(ctx, testNS, "rec1", map[string]any{"task": "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, testNS, "rec1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, testNS, "rec1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, testNS, "rec1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Deleting a missing record should return ErrNotFound, got %v", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	if _, err := s.Get(ctx, store.Namespace{}, "id"); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
	if _, err := s.Put(ctx, testNS, "", map[string]any{}); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}
