// Package recall provides episodic memory: past conversational exchanges,
// stored in a local vector index and retrieved by similarity to the current
// message.
//
// Recall is a complement to structured memory, not a replacement. Structured
// records hold reconciled facts; recall holds the raw exchanges those facts
// came from, so the assistant can ground its replies in how something was
// said, not just what was extracted.
//
// Architecture:
//   - Index: vector storage backend (chromem-go for local use)
//   - Embedder: text-to-vector conversion (ONNX locally, mock for tests)
//   - Recaller: orchestrates retrieval and recording
package recall

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Exchange is one stored user/assistant turn.
type Exchange struct {
	ID            string
	OwnerID       string
	ThreadID      string
	UserText      string
	AssistantText string
	CreatedAt     time.Time

	// Embedding is set before indexing; Index implementations never embed.
	Embedding []float32

	// Similarity is populated on retrieval, in [0, 1].
	Similarity float32
}

// NewExchange creates an exchange ready for embedding and indexing.
func NewExchange(ownerID, threadID, userText, assistantText string) *Exchange {
	return &Exchange{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		ThreadID:      threadID,
		UserText:      userText,
		AssistantText: assistantText,
		CreatedAt:     time.Now(),
	}
}

// EmbeddingText returns the text representation used for embedding.
func (e *Exchange) EmbeddingText() string {
	return "User: " + e.UserText + "\nAssistant: " + e.AssistantText
}

// Index is the vector storage backend for exchanges.
type Index interface {
	// Add indexes an exchange. The embedding must already be set.
	Add(ctx context.Context, ex *Exchange) error

	// Query returns the owner's exchanges most similar to the embedding,
	// highest similarity first.
	Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*Exchange, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Recaller is what the engine uses. Implementations decide what to store and
// how to format retrievals.
type Recaller interface {
	// Retrieve returns a prompt-ready block of past exchanges relevant to the
	// message, or "" when nothing relevant exists.
	Retrieve(ctx context.Context, ownerID, message string) (string, error)

	// Record stores the turn's exchange.
	Record(ctx context.Context, ownerID, threadID, userText, assistantText string) error
}

// Config holds SimpleRecaller configuration.
type Config struct {
	// Limit caps how many exchanges a retrieval returns.
	Limit int

	// MinSimilarity drops weakly related exchanges. Small local models score
	// lower than hosted embedders; 0.35 is a workable floor for MiniLM-class
	// models.
	MinSimilarity float32
}

// DefaultConfig returns defaults tuned for a local MiniLM-class embedder.
func DefaultConfig() Config {
	return Config{Limit: 5, MinSimilarity: 0.35}
}

// SimpleRecaller is the stock Recaller: embed, query, format.
type SimpleRecaller struct {
	index    Index
	embedder Embedder
	config   Config
}

// New creates a recaller over the given index and embedder.
func New(index Index, embedder Embedder, config Config) *SimpleRecaller {
	return &SimpleRecaller{index: index, embedder: embedder, config: config}
}

// Retrieve finds relevant past exchanges and formats them for the prompt.
func (r *SimpleRecaller) Retrieve(ctx context.Context, ownerID, message string) (string, error) {
	embedding, err := r.embedder.Embed(ctx, message)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	exchanges, err := r.index.Query(ctx, ownerID, embedding, r.config.Limit)
	if err != nil {
		return "", fmt.Errorf("query index: %w", err)
	}

	var kept []*Exchange
	for _, ex := range exchanges {
		if ex.Similarity >= r.config.MinSimilarity {
			kept = append(kept, ex)
		}
	}
	log.Printf("[RECALL] %d of %d exchanges above similarity floor for %q",
		len(kept), len(exchanges), truncateLog(message, 50))
	if len(kept) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("<recalled_exchanges>\n")
	for _, ex := range kept {
		fmt.Fprintf(&b, "- (%s) user: %s / you: %s\n",
			ex.CreatedAt.Format("2006-01-02"),
			truncateLog(ex.UserText, 200),
			truncateLog(ex.AssistantText, 200))
	}
	b.WriteString("</recalled_exchanges>")
	return b.String(), nil
}

// Record embeds and indexes the turn's exchange. Trivial exchanges are
// skipped.
func (r *SimpleRecaller) Record(ctx context.Context, ownerID, threadID, userText, assistantText string) error {
	if len(strings.TrimSpace(userText)) < 10 {
		return nil
	}

	ex := NewExchange(ownerID, threadID, userText, assistantText)
	embedding, err := r.embedder.Embed(ctx, ex.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embed exchange: %w", err)
	}
	ex.Embedding = embedding

	if err := r.index.Add(ctx, ex); err != nil {
		return fmt.Errorf("index exchange: %w", err)
	}
	log.Printf("[RECALL] Recorded exchange %s for owner=%s", ex.ID, ownerID)
	return nil
}

func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
