package assemble_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/keepsake-ai/keepsake-go-sdk/assemble"
	"github.com/keepsake-ai/keepsake-go-sdk/schema"
	"github.com/keepsake-ai/keepsake-go-sdk/store"
	"github.com/keepsake-ai/keepsake-go-sdk/store/inmem"
)

func newAssembler(t *testing.T, maxItems int) (*assemble.Assembler, *inmem.Store) {
	t.Helper()
	st := inmem.New()
	return assemble.New(st, schema.Default(), assemble.Config{MaxItems: maxItems}), st
}

func TestRender_EmptyMemoryShowsExplicitMarkers(t *testing.T) {
	a, _ := newAssembler(t, 20)

	snap := a.Load(context.Background(), "user1")
	rendered := a.Render(snap)

	// Every kind gets a section even with nothing stored, so the model can
	// tell empty apart from omitted.
	for _, tag := range []string{"<user_profile>", "<task_list>", "<standing_instructions>"} {
		if !strings.Contains(rendered, tag) {
			t.Errorf("Rendered context missing section %s:\n%s", tag, rendered)
		}
	}
	if strings.Count(rendered, "(none recorded)") != 3 {
		t.Errorf("Expected three empty markers:\n%s", rendered)
	}
}

func TestLoadAndRender_AllKinds(t *testing.T) {
	ctx := context.Background()
	a, st := newAssembler(t, 20)

	profileNS := store.Namespace{OwnerID: "user1", Kind: schema.KindProfile}
	todoNS := store.Namespace{OwnerID: "user1", Kind: schema.KindTodo}
	instructionsNS := store.Namespace{OwnerID: "user1", Kind: schema.KindInstructions}

	if _, err := st.Put(ctx, profileNS, "user_profile", map[string]any{"name": "Dana", "location": "Utrecht"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := st.Put(ctx, todoNS, "rec1", map[string]any{"task": "book flight", "status": "not started"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := st.Put(ctx, instructionsNS, "user_instructions", map[string]any{"content": "keep replies short"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	snap := a.Load(ctx, "user1")
	if len(snap.Get(schema.KindProfile)) != 1 {
		t.Errorf("Profile not loaded: %v", snap.Records)
	}
	if len(snap.Get(schema.KindTodo)) != 1 {
		t.Errorf("Todos not loaded: %v", snap.Records)
	}

	rendered := a.Render(snap)
	for _, want := range []string{"Dana", "book flight", "keep replies short", "[rec1]"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("Rendered context missing %q:\n%s", want, rendered)
		}
	}
	if strings.Contains(rendered, "(none recorded)") {
		t.Errorf("No section should be empty:\n%s", rendered)
	}
}

func TestLoad_IsolatesOwners(t *testing.T) {
	ctx := context.Background()
	a, st := newAssembler(t, 20)

	ns := store.Namespace{OwnerID: "user2", Kind: schema.KindProfile}
	if _, err := st.Put(ctx, ns, "user_profile", map[string]any{"name": "Sam"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	snap := a.Load(ctx, "user1")
	if len(snap.Get(schema.KindProfile)) != 0 {
		t.Errorf("Loaded another owner's records: %v", snap.Records)
	}
}

func TestRender_TruncatesCollectionsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	a, st := newAssembler(t, 2)

	ns := store.Namespace{OwnerID: "user1", Kind: schema.KindTodo}
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("rec%d", i)
		if _, err := st.Put(ctx, ns, id, map[string]any{"task": id, "status": "not started"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	// Touch rec1 so it becomes the most recently updated.
	if _, err := st.Put(ctx, ns, "rec1", map[string]any{"task": "rec1 updated", "status": "in progress"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rendered := a.Render(a.Load(ctx, "user1"))

	if !strings.Contains(rendered, "(showing 2 of 4, most recently updated)") {
		t.Errorf("Missing truncation note:\n%s", rendered)
	}
	if !strings.Contains(rendered, "[rec1]") {
		t.Errorf("Most recently updated record was truncated away:\n%s", rendered)
	}
	if strings.Contains(rendered, "[rec0]") {
		t.Errorf("Expected rec0 to be truncated:\n%s", rendered)
	}
}

func TestRender_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, st := newAssembler(t, 2)

	ns := store.Namespace{OwnerID: "user1", Kind: schema.KindTodo}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := st.Put(ctx, ns, id, map[string]any{"task": id, "status": "done"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	snap := a.Load(ctx, "user1")
	first := a.Render(snap)
	for i := 0; i < 5; i++ {
		if got := a.Render(snap); got != first {
			t.Fatal("Render is not deterministic for the same snapshot")
		}
	}
}
