package extract_test

import (
	"context"
	"errors"
	"testing"

	"github.com/keepsake-ai/keepsake-go-sdk/core"
	"github.com/keepsake-ai/keepsake-go-sdk/extract"
	"github.com/keepsake-ai/keepsake-go-sdk/model"
	"github.com/keepsake-ai/keepsake-go-sdk/model/modeltest"
	"github.com/keepsake-ai/keepsake-go-sdk/schema"
)

var turn = []core.Message{
	core.NewUserMessage("I need to book a flight to Lisbon by Friday"),
}

func newExtractor(script *modeltest.Script) *extract.Extractor {
	return extract.New(script, schema.Default(), &extract.Config{RepairAttempts: 2})
}

func TestRun_InsertWithNoExisting(t *testing.T) {
	script := modeltest.New().Call("ToDo", map[string]any{
		"task":   "book flight to Lisbon",
		"status": "not started",
	})
	ex := newExtractor(script)

	result, err := ex.Run(context.Background(), &extract.Request{
		Kind:         schema.KindTodo,
		Messages:     turn,
		AllowInserts: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Deltas) != 1 {
		t.Fatalf("Expected 1 delta, got %d", len(result.Deltas))
	}

	delta := result.Deltas[0]
	if delta.Op != extract.OpInsert {
		t.Errorf("Op = %v, want insert", delta.Op)
	}
	if delta.RecordID == "" {
		t.Error("Insert should mint a record id")
	}
	if delta.Value["task"] != "book flight to Lisbon" {
		t.Errorf("task = %v", delta.Value["task"])
	}
	// Defaults from the kind's empty document must survive the merge.
	if _, ok := delta.Value["solutions"]; !ok {
		t.Error("Empty-document default for solutions is missing")
	}

	// Without existing records the patch tool must not be offered.
	req := script.Requests()[0]
	for _, tool := range req.Tools {
		if tool.Name == extract.PatchToolName {
			t.Error("Patch tool bound with no existing records")
		}
	}
}

func TestRun_PatchUpdatesExistingRecord(t *testing.T) {
	script := modeltest.New().Call(extract.PatchToolName, map[string]any{
		"json_doc_id": "rec1",
		"patches": []map[string]any{
			{"op": "replace", "path": "/status", "value": "in progress"},
			{"op": "add", "path": "/solutions/-", "value": "compare airlines"},
		},
	})
	ex := newExtractor(script)

	result, err := ex.Run(context.Background(), &extract.Request{
		Kind:     schema.KindTodo,
		Messages: turn,
		Existing: []extract.Existing{{
			ID: "rec1",
			Value: map[string]any{
				"task":      "book flight to Lisbon",
				"deadline":  "2026-09-04T00:00:00Z",
				"solutions": []any{"check miles"},
				"status":    "not started",
			},
		}},
		AllowInserts: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Deltas) != 1 {
		t.Fatalf("Expected 1 delta, got %d", len(result.Deltas))
	}

	delta := result.Deltas[0]
	if delta.Op != extract.OpUpdate || delta.RecordID != "rec1" {
		t.Errorf("Delta = %+v, want update of rec1", delta)
	}
	if delta.Value["status"] != "in progress" {
		t.Errorf("status = %v", delta.Value["status"])
	}
	// Fields the patch never touched must survive exactly.
	if delta.Value["deadline"] != "2026-09-04T00:00:00Z" {
		t.Errorf("Untouched deadline changed: %v", delta.Value["deadline"])
	}
	solutions := delta.Value["solutions"].([]any)
	if len(solutions) != 2 || solutions[0] != "check miles" {
		t.Errorf("solutions = %v", solutions)
	}
}

func TestRun_PatchTargetMissingBecomesInsert(t *testing.T) {
	script := modeltest.New().Call(extract.PatchToolName, map[string]any{
		"json_doc_id": "gone",
		"patches": []map[string]any{
			{"op": "replace", "path": "/task", "value": "book flight"},
			{"op": "replace", "path": "/status", "value": "not started"},
		},
	})
	ex := newExtractor(script)

	result, err := ex.Run(context.Background(), &extract.Request{
		Kind:     schema.KindTodo,
		Messages: turn,
		Existing: []extract.Existing{{
			ID:    "rec1",
			Value: map[string]any{"task": "unrelated", "status": "done"},
		}},
		AllowInserts: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Deltas) != 1 {
		t.Fatalf("Expected 1 delta, got %d", len(result.Deltas))
	}

	delta := result.Deltas[0]
	if delta.Op != extract.OpInsert {
		t.Errorf("Op = %v, want insert", delta.Op)
	}
	if delta.RecordID == "gone" || delta.RecordID == "rec1" {
		t.Errorf("Insert should mint a fresh id, got %q", delta.RecordID)
	}
	if delta.Value["task"] != "book flight" {
		t.Errorf("task = %v", delta.Value["task"])
	}
}

func TestRun_SingletonUpdateMergesFields(t *testing.T) {
	script := modeltest.New().Call("Profile", map[string]any{
		"location": "Rotterdam",
	})
	ex := newExtractor(script)

	result, err := ex.Run(context.Background(), &extract.Request{
		Kind:     schema.KindProfile,
		Messages: []core.Message{core.NewUserMessage("I moved to Rotterdam last month")},
		Existing: []extract.Existing{{
			ID:    "user_profile",
			Value: map[string]any{"name": "Dana", "location": "Utrecht", "job": "teacher"},
		}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Deltas) != 1 {
		t.Fatalf("Expected 1 delta, got %d", len(result.Deltas))
	}

	delta := result.Deltas[0]
	if delta.Op != extract.OpUpdate || delta.RecordID != "user_profile" {
		t.Errorf("Delta = %+v, want update of user_profile", delta)
	}
	if delta.Value["location"] != "Rotterdam" {
		t.Errorf("location = %v", delta.Value["location"])
	}
	if delta.Value["name"] != "Dana" || delta.Value["job"] != "teacher" {
		t.Errorf("Unstated fields changed: %v", delta.Value)
	}
}

func TestRun_RepairFixesInvalidDocument(t *testing.T) {
	script := modeltest.New().
		Call("ToDo", map[string]any{"task": "book flight", "status": "soonish"}).
		Call("ToDo", map[string]any{"status": "not started"})
	ex := newExtractor(script)

	result, err := ex.Run(context.Background(), &extract.Request{
		Kind:         schema.KindTodo,
		Messages:     turn,
		AllowInserts: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Deltas) != 1 {
		t.Fatalf("Expected 1 delta after repair, got %d (dropped: %v)", len(result.Deltas), result.Dropped)
	}

	delta := result.Deltas[0]
	if delta.Value["status"] != "not started" {
		t.Errorf("status = %v", delta.Value["status"])
	}
	// The correction only restated status; task must survive from the
	// previous candidate.
	if delta.Value["task"] != "book flight" {
		t.Errorf("task lost in repair merge: %v", delta.Value)
	}

	// The repair call must force the document tool.
	if script.Calls() != 2 {
		t.Fatalf("Expected 2 model calls, got %d", script.Calls())
	}
	repairReq := script.Requests()[1]
	if repairReq.ToolChoice.Mode != model.ToolChoiceTool || repairReq.ToolChoice.Name != "ToDo" {
		t.Errorf("Repair tool choice = %+v", repairReq.ToolChoice)
	}
}

func TestRun_RepairBudgetExhaustedDropsCandidate(t *testing.T) {
	script := modeltest.New().
		Call("ToDo", map[string]any{"task": "book flight", "status": "soonish"}).
		Call("ToDo", map[string]any{"status": "still wrong"}).
		Call("ToDo", map[string]any{"status": "nope"})
	ex := newExtractor(script)

	result, err := ex.Run(context.Background(), &extract.Request{
		Kind:         schema.KindTodo,
		Messages:     turn,
		AllowInserts: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Deltas) != 0 {
		t.Errorf("Expected no deltas, got %v", result.Deltas)
	}
	if len(result.Dropped) != 1 {
		t.Fatalf("Expected 1 dropped candidate, got %d", len(result.Dropped))
	}
	// Initial call plus exactly RepairAttempts repair calls.
	if script.Calls() != 3 {
		t.Errorf("Expected 3 model calls, got %d", script.Calls())
	}
}

func TestRun_MalformedCandidateIsDroppedOthersSurvive(t *testing.T) {
	script := modeltest.New().Respond(&model.Response{
		ToolCalls: []model.ToolCall{
			modeltest.MakeCall("ToDo", `{not json`),
			modeltest.MakeCall("ToDo", map[string]any{"task": "water plants", "status": "not started"}),
		},
	})
	ex := newExtractor(script)

	result, err := ex.Run(context.Background(), &extract.Request{
		Kind:         schema.KindTodo,
		Messages:     turn,
		AllowInserts: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Deltas) != 1 || result.Deltas[0].Value["task"] != "water plants" {
		t.Errorf("Valid sibling candidate should survive: %+v", result.Deltas)
	}
	if len(result.Dropped) != 1 {
		t.Errorf("Malformed candidate should be dropped, got %v", result.Dropped)
	}
}

func TestRun_ModelFailureFailsThePass(t *testing.T) {
	script := modeltest.New().Fail(errors.New("model unavailable"))
	ex := newExtractor(script)

	_, err := ex.Run(context.Background(), &extract.Request{
		Kind:     schema.KindTodo,
		Messages: turn,
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
}

func TestRun_UnknownKind(t *testing.T) {
	ex := newExtractor(modeltest.New())
	_, err := ex.Run(context.Background(), &extract.Request{Kind: "nope"})
	if err == nil {
		t.Fatal("Expected an error for unknown kind")
	}
}
