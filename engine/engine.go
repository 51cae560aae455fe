// Package engine runs the per-turn conversation pipeline: assemble memory
// context, respond, then reconcile what the turn revealed back into the
// store.
//
// The response path and the memory path have different failure rules. A model
// error while responding fails the turn; any failure on the memory path —
// routing, extraction, persistence, recall — degrades to "memory unchanged
// this turn" and the reply still goes out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keepsake-ai/keepsake-go-sdk/assemble"
	"github.com/keepsake-ai/keepsake-go-sdk/core"
	"github.com/keepsake-ai/keepsake-go-sdk/extract"
	"github.com/keepsake-ai/keepsake-go-sdk/model"
	"github.com/keepsake-ai/keepsake-go-sdk/recall"
	"github.com/keepsake-ai/keepsake-go-sdk/router"
	"github.com/keepsake-ai/keepsake-go-sdk/schema"
	"github.com/keepsake-ai/keepsake-go-sdk/store"
)

var tracer = otel.Tracer("github.com/keepsake-ai/keepsake-go-sdk/engine")

// Config tunes the engine.
type Config struct {
	// SystemPrompt is the base assistant prompt; memory context is appended
	// to it each turn.
	SystemPrompt string

	// WindowSize is how many trailing history messages the response and
	// extraction calls see.
	WindowSize int

	// MaxTokens caps the response call.
	MaxTokens int64
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: DefaultSystemPrompt,
		WindowSize:   12,
		MaxTokens:    4096,
	}
}

// Option configures the engine.
type Option func(*Engine)

// WithRecall adds episodic recall to the pipeline.
func WithRecall(r recall.Recaller) Option {
	return func(e *Engine) {
		e.recaller = r
	}
}

// WithConfig overrides the default engine tuning.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithExtractConfig overrides the default extractor tuning.
func WithExtractConfig(cfg *extract.Config) Option {
	return func(e *Engine) {
		e.extractor = extract.New(e.client, e.registry, cfg)
	}
}

// WithAssembleConfig overrides the default assembly tuning.
func WithAssembleConfig(cfg assemble.Config) Option {
	return func(e *Engine) {
		e.assembler = assemble.New(e.store, e.registry, cfg)
	}
}

// Engine orchestrates one conversation turn at a time.
type Engine struct {
	client    model.Client
	store     store.Store
	registry  *schema.Registry
	assembler *assemble.Assembler
	router    *router.Router
	extractor *extract.Extractor
	recaller  recall.Recaller // Optional
	config    Config
}

// New creates an engine over the given model client, store, and registry.
// A nil registry uses the built-in kinds.
func New(client model.Client, st store.Store, registry *schema.Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = schema.Default()
	}
	e := &Engine{
		client:    client,
		store:     st,
		registry:  registry,
		router:    router.New(client, registry),
		extractor: extract.New(client, registry, nil),
		config:    DefaultConfig(),
	}
	e.assembler = assemble.New(st, registry, assemble.DefaultConfig())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's memory kind registry.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Input is one user turn.
type Input struct {
	// OwnerID scopes all memory operations for the turn.
	OwnerID string

	// ThreadID identifies the conversation, for recall bookkeeping.
	ThreadID string

	// UserMessage is the user's message to respond to.
	UserMessage string

	// History contains the prior messages of this thread, oldest first.
	History []core.Message
}

// MemoryOutcome reports what the turn did to memory.
type MemoryOutcome struct {
	// Written counts records persisted per kind. Empty means memory is
	// unchanged this turn.
	Written map[schema.Kind]int

	// Dropped counts extraction candidates discarded as soft failures.
	Dropped int
}

// Changed reports whether any record was written.
func (m *MemoryOutcome) Changed() bool {
	for _, n := range m.Written {
		if n > 0 {
			return true
		}
	}
	return false
}

// Output is the result of one turn.
type Output struct {
	// Text is the assistant's reply.
	Text string

	// Memory reports reconciliation results for the turn.
	Memory MemoryOutcome

	// Usage is the cumulative token usage across all model calls this turn.
	Usage model.Usage
}

// Run executes one turn: load memory, respond, reconcile.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input.OwnerID == "" {
		return nil, errors.New("engine: input needs an owner id")
	}
	if input.UserMessage == "" {
		return nil, errors.New("engine: input needs a user message")
	}

	ctx, span := tracer.Start(ctx, "engine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("memory.owner", input.OwnerID))

	output := &Output{Memory: MemoryOutcome{Written: make(map[schema.Kind]int)}}

	// === PHASE 1: ASSEMBLE MEMORY CONTEXT ===
	snap := e.assembler.Load(ctx, input.OwnerID)
	system := e.config.SystemPrompt + "\n\n" + e.assembler.Render(snap)

	// === PHASE 2: RECALL PAST EXCHANGES ===
	if e.recaller != nil {
		recalled, err := e.recaller.Retrieve(ctx, input.OwnerID, input.UserMessage)
		if err != nil {
			log.Printf("[ENGINE] Recall failed, continuing without: %v", err)
		} else if recalled != "" {
			system += "\n\n" + recalled
		}
	}

	// === PHASE 3: RESPOND ===
	messages := core.Window(append(append([]core.Message{}, input.History...),
		core.NewUserMessage(input.UserMessage)), e.config.WindowSize)

	resp, err := e.client.Invoke(ctx, &model.Request{
		System:    system,
		Messages:  messages,
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("response call: %w", err)
	}
	output.Usage.Add(resp.Usage)
	output.Text = resp.Text

	// === PHASE 4: RECONCILE MEMORY ===
	// Everything below is best-effort: the reply already exists, so memory
	// problems only mean this turn goes unrecorded.
	turn := []core.Message{
		core.NewUserMessage(input.UserMessage),
		core.NewAssistantMessage(resp.Text),
	}

	decision := e.router.Decide(ctx, turn)
	for _, kind := range decision.Kinds {
		e.reconcile(ctx, input.OwnerID, kind, snap, messages, output)
	}

	// === PHASE 5: RECORD EXCHANGE ===
	if e.recaller != nil {
		if err := e.recaller.Record(ctx, input.OwnerID, input.ThreadID, input.UserMessage, resp.Text); err != nil {
			log.Printf("[ENGINE] Recording exchange failed: %v", err)
		}
	}

	span.SetAttributes(attribute.Bool("memory.changed", output.Memory.Changed()))
	return output, nil
}

// reconcile runs extraction for one kind and persists the resulting deltas.
func (e *Engine) reconcile(ctx context.Context, ownerID string, kind schema.Kind, snap *assemble.Snapshot, messages []core.Message, output *Output) {
	def, ok := e.registry.Get(kind)
	if !ok {
		return
	}

	var existing []extract.Existing
	for _, rec := range snap.Get(kind) {
		existing = append(existing, extract.Existing{ID: rec.ID, Value: rec.Value})
	}

	result, err := e.extractor.Run(ctx, &extract.Request{
		Kind:         kind,
		Instruction:  reconcileInstruction(def),
		Messages:     messages,
		Existing:     existing,
		AllowInserts: !def.Singleton,
	})
	if err != nil {
		log.Printf("[ENGINE] Extraction for %s failed, memory unchanged: %v", kind, err)
		return
	}
	output.Usage.Add(result.Usage)
	output.Memory.Dropped += len(result.Dropped)

	ns := store.Namespace{OwnerID: ownerID, Kind: kind}
	for _, delta := range result.Deltas {
		id := delta.RecordID
		// Singletons live under their fixed key no matter what id extraction
		// minted.
		if def.Singleton {
			id = def.RecordKey
		}
		if _, err := e.store.Put(ctx, ns, id, delta.Value); err != nil {
			log.Printf("[ENGINE] Persisting %s/%s failed: %v", ns, id, err)
			continue
		}
		output.Memory.Written[kind]++
		log.Printf("[ENGINE] %s %s/%s", delta.Op, ns, id)
	}
}

func reconcileInstruction(def *schema.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reconcile the conversation below into the user's %s memory.\n", def.Kind)
	b.WriteString("Capture only what the conversation states or clearly implies; never invent details.")
	return b.String()
}

// DefaultSystemPrompt is the base assistant prompt used when none is
// configured.
const DefaultSystemPrompt = `You are a helpful assistant with long-term memory.

The sections below your instructions contain what you currently remember about
this user: their profile, their task list, and their standing instructions.

GUIDELINES:
- Use remembered context naturally; do not recite it back unprompted
- Follow the user's standing instructions when responding
- Be conversational and concise
- Never mention the memory system itself unless the user asks`
