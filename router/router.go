// Package router makes the per-turn reconciliation decision: which memory
// kinds, if any, the latest turn requires updating.
//
// The decision is a stateless classification over the latest turn only, made
// before extraction so the pipeline knows which existing records to load. If
// the decision step itself fails — a model error or malformed output — the
// router defaults to "no update": silently skipping a memory update is safe,
// corrupting a record by guessing is not.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keepsake-ai/keepsake-go-sdk/core"
	"github.com/keepsake-ai/keepsake-go-sdk/model"
	"github.com/keepsake-ai/keepsake-go-sdk/schema"
)

// DecisionToolName is the classification tool bound for routing.
const DecisionToolName = "update_memory"

var tracer = otel.Tracer("github.com/keepsake-ai/keepsake-go-sdk/router")

// Decision lists the memory kinds the turn requires updating, in registry
// order, without duplicates. An empty Decision means no update this turn.
type Decision struct {
	Kinds []schema.Kind
}

// Empty reports whether the decision requires no work.
func (d *Decision) Empty() bool {
	return len(d.Kinds) == 0
}

// Router classifies turns into memory-kind updates.
type Router struct {
	client   model.Client
	registry *schema.Registry
}

// New creates a router over the registered memory kinds.
func New(client model.Client, registry *schema.Registry) *Router {
	return &Router{client: client, registry: registry}
}

// Decide classifies the latest turn. turn should contain the user message and,
// when available, the assistant's reply — nothing older.
//
// Decide never fails the turn: model errors and malformed decisions both
// degrade to an empty decision.
func (r *Router) Decide(ctx context.Context, turn []core.Message) *Decision {
	ctx, span := tracer.Start(ctx, "router.Decide")
	defer span.End()

	resp, err := r.client.Invoke(ctx, &model.Request{
		System:   r.buildSystem(),
		Messages: turn,
		Tools:    []model.Tool{r.decisionTool()},
		// Auto, not forced: a plain-text reply is the model's way of saying
		// "nothing worth remembering this turn".
	})
	if err != nil {
		log.Printf("[ROUTER] decision call failed, skipping memory update: %v", err)
		return &Decision{}
	}

	decision := r.parseDecision(resp)
	span.SetAttributes(attribute.Int("router.kinds", len(decision.Kinds)))
	return decision
}

func (r *Router) parseDecision(resp *model.Response) *Decision {
	for _, call := range resp.ToolCalls {
		if call.Name != DecisionToolName {
			continue
		}

		var args struct {
			Updates []struct {
				Kind   string `json:"kind"`
				Reason string `json:"reason"`
			} `json:"updates"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			log.Printf("[ROUTER] malformed decision, skipping memory update: %v", err)
			return &Decision{}
		}

		requested := make(map[schema.Kind]bool, len(args.Updates))
		for _, u := range args.Updates {
			kind := schema.Kind(u.Kind)
			if _, ok := r.registry.Get(kind); !ok {
				log.Printf("[ROUTER] ignoring unknown kind %q in decision", u.Kind)
				continue
			}
			requested[kind] = true
		}

		decision := &Decision{}
		for _, kind := range r.registry.Kinds() {
			if requested[kind] {
				decision.Kinds = append(decision.Kinds, kind)
			}
		}
		return decision
	}

	// Text-only response: nothing to update.
	return &Decision{}
}

func (r *Router) buildSystem() string {
	var b strings.Builder
	b.WriteString("Decide which long-term memory kinds the latest exchange requires updating.\n\n")
	b.WriteString("KINDS:\n")
	for _, kind := range r.registry.Kinds() {
		def, _ := r.registry.Get(kind)
		fmt.Fprintf(&b, "- %s: %s\n", kind, def.ToolDescription)
	}
	b.WriteString("\nCall update_memory listing every kind that changed. ")
	b.WriteString("If nothing in this exchange is worth remembering, reply with a short text note instead of calling the tool.")
	return b.String()
}

func (r *Router) decisionTool() model.Tool {
	kinds := r.registry.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return model.Tool{
		Name:        DecisionToolName,
		Description: "Record which memory kinds the latest exchange changed.",
		InputSchema: schema.Object(map[string]schema.JSON{
			"updates": schema.Array("Memory kinds requiring an update this turn",
				schema.Object(map[string]schema.JSON{
					"kind":   schema.StringEnum("Memory kind to update", names...),
					"reason": schema.String("What in the exchange changed this kind"),
				}, "kind")),
		}, "updates"),
	}
}
