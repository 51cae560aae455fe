// Package assemble loads an owner's memory records and renders them into the
// system-prompt context for a turn.
//
// Assembly is read-only and deterministic: the same records always render to
// the same text. Every registered kind gets a section even when empty, so the
// model can tell "no profile recorded" apart from "profile not shown".
package assemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keepsake-ai/keepsake-go-sdk/schema"
	"github.com/keepsake-ai/keepsake-go-sdk/store"
)

var tracer = otel.Tracer("github.com/keepsake-ai/keepsake-go-sdk/assemble")

// Config controls context assembly.
type Config struct {
	// MaxItems caps how many records a collection section renders. When a
	// collection exceeds the cap, the most recently updated records win and
	// the section notes how many were omitted. Zero means no cap.
	MaxItems int
}

// DefaultConfig returns the default assembly configuration.
func DefaultConfig() Config {
	return Config{MaxItems: 20}
}

// Snapshot is one owner's memory at the start of a turn, keyed by kind in
// registry order. Records in each slice are in insertion order.
type Snapshot struct {
	OwnerID string
	Records map[schema.Kind][]*store.Record
}

// Get returns the records loaded for a kind.
func (s *Snapshot) Get(kind schema.Kind) []*store.Record {
	return s.Records[kind]
}

// Assembler loads and renders memory context.
type Assembler struct {
	store    store.Store
	registry *schema.Registry
	config   Config
}

// New creates an assembler over the given store and registry.
func New(st store.Store, registry *schema.Registry, config Config) *Assembler {
	return &Assembler{store: st, registry: registry, config: config}
}

// Load reads all records for the owner across every registered kind.
//
// A kind whose read fails is loaded as empty and logged; one unreachable
// namespace must not take down the turn.
func (a *Assembler) Load(ctx context.Context, ownerID string) *Snapshot {
	ctx, span := tracer.Start(ctx, "assemble.Load")
	defer span.End()
	span.SetAttributes(attribute.String("memory.owner", ownerID))

	snap := &Snapshot{
		OwnerID: ownerID,
		Records: make(map[schema.Kind][]*store.Record),
	}
	for _, kind := range a.registry.Kinds() {
		def, _ := a.registry.Get(kind)
		ns := store.Namespace{OwnerID: ownerID, Kind: kind}

		records, err := a.load(ctx, ns, def)
		if err != nil {
			log.Printf("[ASSEMBLE] loading %s failed, rendering as empty: %v", ns, err)
			continue
		}
		snap.Records[kind] = records
	}
	return snap
}

func (a *Assembler) load(ctx context.Context, ns store.Namespace, def *schema.Definition) ([]*store.Record, error) {
	if def.Singleton {
		rec, err := a.store.Get(ctx, ns, def.RecordKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []*store.Record{rec}, nil
	}
	return a.store.Search(ctx, ns)
}

// Render produces the memory block of the system prompt from a snapshot.
func (a *Assembler) Render(snap *Snapshot) string {
	var b strings.Builder
	for i, kind := range a.registry.Kinds() {
		def, _ := a.registry.Get(kind)
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<%s>\n", sectionTag(def.Section))
		a.renderSection(&b, def, snap.Get(kind))
		fmt.Fprintf(&b, "</%s>\n", sectionTag(def.Section))
	}
	return b.String()
}

func (a *Assembler) renderSection(b *strings.Builder, def *schema.Definition, records []*store.Record) {
	if len(records) == 0 {
		b.WriteString("(none recorded)\n")
		return
	}

	if def.Singleton {
		b.WriteString(renderValue(records[0].Value))
		b.WriteString("\n")
		return
	}

	shown := records
	if a.config.MaxItems > 0 && len(records) > a.config.MaxItems {
		// Most recently updated first; ties broken by id so truncation is
		// stable across runs.
		sorted := make([]*store.Record, len(records))
		copy(sorted, records)
		sort.SliceStable(sorted, func(i, j int) bool {
			if !sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
				return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
			}
			return sorted[i].ID < sorted[j].ID
		})
		shown = sorted[:a.config.MaxItems]
		fmt.Fprintf(b, "(showing %d of %d, most recently updated)\n", len(shown), len(records))
	}

	for _, rec := range shown {
		fmt.Fprintf(b, "- [%s] %s\n", rec.ID, renderValue(rec.Value))
	}
}

func renderValue(value map[string]any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func sectionTag(section string) string {
	return strings.ToLower(strings.ReplaceAll(section, " ", "_"))
}
