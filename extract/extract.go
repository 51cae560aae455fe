// Package extract turns a conversation window plus optional existing records
// into validated record deltas: whole-document inserts and field-level
// updates against a specific record.
//
// The extractor binds one "full document" tool per memory kind and a generic
// patch tool when existing records are supplied, forces the model to choose,
// validates every candidate against the kind's schema, and repairs failing
// candidates within a bounded budget. A candidate that cannot be repaired is
// dropped as a soft failure; its siblings still commit.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keepsake-ai/keepsake-go-sdk/core"
	"github.com/keepsake-ai/keepsake-go-sdk/model"
	"github.com/keepsake-ai/keepsake-go-sdk/schema"
	"github.com/keepsake-ai/keepsake-go-sdk/store"
)

// PatchToolName is the tool the model calls to change an existing record.
const PatchToolName = "patch_document"

var tracer = otel.Tracer("github.com/keepsake-ai/keepsake-go-sdk/extract")

// Op tags a delta as a fresh insert or an update of a specific record.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Existing is one current record of the target kind, passed as extraction
// context.
type Existing struct {
	ID    string
	Value map[string]any
}

// Request describes one extraction pass for a single memory kind.
type Request struct {
	Kind        schema.Kind
	Instruction string

	// Messages is the transcript window; the extractor never sees more
	// history than the caller hands it.
	Messages []core.Message

	Existing []Existing

	// AllowInserts permits new records alongside updates in one pass.
	// Collection kinds set it; singletons do not.
	AllowInserts bool
}

// Delta is one validated outcome: a complete merged value tagged with how it
// should be persisted. Inserts carry a freshly generated record id; updates
// carry the id of the record they target.
type Delta struct {
	Op       Op
	RecordID string
	Value    map[string]any
}

// Dropped records one candidate that was discarded as a soft failure.
type Dropped struct {
	Tool   string
	Reason string
}

// Result is the outcome of one extraction pass.
type Result struct {
	Deltas  []Delta
	Dropped []Dropped
	Usage   model.Usage
}

// Config tunes the extractor.
type Config struct {
	// RepairAttempts bounds how many times an invalid candidate is sent back
	// for correction before being dropped.
	RepairAttempts int

	// Timeout bounds each extraction pass including repairs. Zero means the
	// caller's context governs.
	Timeout time.Duration

	// MaxTokens caps each model response.
	MaxTokens int64
}

// DefaultConfig returns the standard extractor tuning.
var DefaultConfig = &Config{
	RepairAttempts: 2,
	Timeout:        45 * time.Second,
}

// Extractor computes record deltas for one memory kind at a time.
type Extractor struct {
	client   model.Client
	registry *schema.Registry
	cfg      *Config
}

// New creates an extractor.
func New(client model.Client, registry *schema.Registry, cfg *Config) *Extractor {
	if cfg == nil {
		cfg = DefaultConfig
	}
	return &Extractor{client: client, registry: registry, cfg: cfg}
}

// Run performs one extraction pass. A returned error means the pass as a
// whole produced nothing (model failure, timeout, unknown kind); per-candidate
// problems surface in Result.Dropped instead.
func (e *Extractor) Run(ctx context.Context, req *Request) (*Result, error) {
	def, ok := e.registry.Get(req.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown memory kind %q", req.Kind)
	}

	ctx, span := tracer.Start(ctx, "extract.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("memory.kind", string(req.Kind)),
		attribute.Int("memory.existing", len(req.Existing)),
	)

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	tools := []model.Tool{docTool(def)}
	if len(req.Existing) > 0 {
		tools = append(tools, patchTool(def))
	}

	resp, err := e.client.Invoke(ctx, &model.Request{
		System:     buildSystem(def, req),
		Messages:   req.Messages,
		Tools:      tools,
		ToolChoice: model.ForceAny(),
		MaxTokens:  e.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	result := &Result{}
	result.Usage.Add(resp.Usage)

	for _, call := range resp.ToolCalls {
		cand, err := e.buildCandidate(def, req, call)
		if err != nil {
			log.Printf("[EXTRACT] dropping %s candidate: %v", call.Name, err)
			result.Dropped = append(result.Dropped, Dropped{Tool: call.Name, Reason: err.Error()})
			continue
		}

		value, err := e.validateAndRepair(ctx, def, cand.value, result)
		if err != nil {
			log.Printf("[EXTRACT] dropping %s candidate for record %s: %v", call.Name, cand.recordID, err)
			result.Dropped = append(result.Dropped, Dropped{Tool: call.Name, Reason: err.Error()})
			continue
		}

		result.Deltas = append(result.Deltas, Delta{Op: cand.op, RecordID: cand.recordID, Value: value})
	}

	span.SetAttributes(
		attribute.Int("extract.deltas", len(result.Deltas)),
		attribute.Int("extract.dropped", len(result.Dropped)),
	)
	return result, nil
}

type candidate struct {
	op       Op
	recordID string
	value    map[string]any
}

// buildCandidate converts one tool call into an unvalidated candidate delta.
func (e *Extractor) buildCandidate(def *schema.Definition, req *Request, call model.ToolCall) (*candidate, error) {
	switch call.Name {
	case def.ToolName:
		var doc map[string]any
		if err := json.Unmarshal(call.Arguments, &doc); err != nil {
			return nil, fmt.Errorf("malformed document arguments: %w", err)
		}

		// A full document against an existing singleton is an update with
		// field-overwrite merge: fields the model stated win, the rest keep
		// their stored values.
		if def.Singleton && len(req.Existing) > 0 {
			ex := req.Existing[0]
			return &candidate{
				op:       OpUpdate,
				recordID: ex.ID,
				value:    mergeFields(ex.Value, doc),
			}, nil
		}

		return &candidate{
			op:       OpInsert,
			recordID: uuid.New().String(),
			value:    mergeFields(def.Empty(), doc),
		}, nil

	case PatchToolName:
		var args struct {
			JSONDocID string    `json:"json_doc_id"`
			Patches   []PatchOp `json:"patches"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, fmt.Errorf("malformed patch arguments: %w", err)
		}

		for _, ex := range req.Existing {
			if ex.ID == args.JSONDocID {
				value, err := ApplyPatch(ex.Value, args.Patches)
				if err != nil {
					return nil, err
				}
				return &candidate{op: OpUpdate, recordID: ex.ID, value: value}, nil
			}
		}

		// The target record vanished out of band. Replay the patches onto an
		// empty document and insert under a fresh id rather than failing.
		value, _ := applyPatch(def.Empty(), args.Patches, false)
		log.Printf("[EXTRACT] patch target %s not found in %s, converting to insert", args.JSONDocID, def.Kind)
		return &candidate{op: OpInsert, recordID: uuid.New().String(), value: value}, nil

	default:
		return nil, fmt.Errorf("unexpected tool %q", call.Name)
	}
}

// validateAndRepair validates a candidate value, feeding field-level errors
// back into at most cfg.RepairAttempts correction calls.
func (e *Extractor) validateAndRepair(ctx context.Context, def *schema.Definition, value map[string]any, result *Result) (map[string]any, error) {
	verr := def.Validate(value)
	if verr == nil {
		return value, nil
	}

	for attempt := 1; attempt <= e.cfg.RepairAttempts; attempt++ {
		ve, ok := schema.AsValidationError(verr)
		if !ok {
			return nil, verr
		}
		log.Printf("[EXTRACT] %s validation failed (repair %d/%d): %v", def.Kind, attempt, e.cfg.RepairAttempts, verr)

		resp, err := e.client.Invoke(ctx, &model.Request{
			System: buildRepairSystem(def, value, ve),
			Messages: []core.Message{
				core.NewUserMessage("Correct the document and call " + def.ToolName + " with the result."),
			},
			Tools:      []model.Tool{docTool(def)},
			ToolChoice: model.ForceTool(def.ToolName),
			MaxTokens:  e.cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("repair call: %w", err)
		}
		result.Usage.Add(resp.Usage)

		corrected, err := firstDoc(resp, def.ToolName)
		if err != nil {
			return nil, err
		}

		// Merge so an over-terse correction cannot silently erase fields the
		// validator never complained about.
		value = mergeFields(value, corrected)
		verr = def.Validate(value)
		if verr == nil {
			return value, nil
		}
	}

	return nil, fmt.Errorf("repair budget exhausted: %w", verr)
}

// firstDoc extracts the first matching document call from a response.
func firstDoc(resp *model.Response, toolName string) (map[string]any, error) {
	for _, call := range resp.ToolCalls {
		if call.Name != toolName {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(call.Arguments, &doc); err != nil {
			return nil, fmt.Errorf("malformed repair document: %w", err)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("repair response contained no %s call", toolName)
}

// mergeFields copies base and overwrites it with every field present in doc.
func mergeFields(base, doc map[string]any) map[string]any {
	out := store.CloneValue(base).(map[string]any)
	for k, v := range doc {
		out[k] = store.CloneValue(v)
	}
	return out
}

// docTool binds a kind's full-document schema as an extraction tool.
func docTool(def *schema.Definition) model.Tool {
	return model.Tool{
		Name:        def.ToolName,
		Description: def.ToolDescription,
		InputSchema: def.Doc,
	}
}

// patchTool binds the generic field-level patch tool.
func patchTool(def *schema.Definition) model.Tool {
	return model.Tool{
		Name:        PatchToolName,
		Description: fmt.Sprintf("Apply a minimal set of field-level patches to one existing %s record. Use this instead of %s whenever the information belongs to a record listed above.", def.Kind, def.ToolName),
		InputSchema: schema.Object(map[string]schema.JSON{
			"json_doc_id": schema.String("ID of the existing record to change"),
			"patches": schema.Array("Field-level changes, smallest possible set",
				schema.Object(map[string]schema.JSON{
					"op":    schema.StringEnum("Patch operation", "add", "replace", "remove"),
					"path":  schema.String("JSON pointer to the field, e.g. /deadline or /solutions/-"),
					"value": {Description: "New value for add and replace operations"},
				}, "op", "path")),
		}, "json_doc_id", "patches"),
	}
}
