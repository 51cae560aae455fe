// Package chromem backs the recall index with chromem-go, a pure-Go embedded
// vector database. Each owner gets an isolated collection.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/keepsake-ai/keepsake-go-sdk/recall"
)

// Index stores exchanges in per-owner chromem collections.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an in-memory chromem index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (x *Index) collection(ownerID string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[ownerID]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[ownerID]; ok {
		return col, nil
	}

	// Embeddings arrive precomputed, so no embedding func; default cosine
	// distance.
	col, err := x.db.CreateCollection(fmt.Sprintf("owner_%s", ownerID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	x.collections[ownerID] = col
	return col, nil
}

// Add indexes an exchange.
func (x *Index) Add(ctx context.Context, ex *recall.Exchange) error {
	col, err := x.collection(ex.OwnerID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        ex.ID,
		Content:   ex.EmbeddingText(),
		Embedding: ex.Embedding,
		Metadata: map[string]string{
			"owner_id":   ex.OwnerID,
			"thread_id":  ex.ThreadID,
			"created_at": ex.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns the owner's most similar exchanges, highest first.
func (x *Index) Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*recall.Exchange, error) {
	col, err := x.collection(ownerID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection, so back off until
	// the query fits.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	exchanges := make([]*recall.Exchange, 0, len(results))
	for _, result := range results {
		ex, err := resultToExchange(result)
		if err != nil {
			log.Printf("[RECALL] Skipping malformed document %s: %v", result.ID, err)
			continue
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

// Close releases resources. chromem keeps everything in process memory.
func (x *Index) Close() error {
	return nil
}

func resultToExchange(result chromem.Result) (*recall.Exchange, error) {
	userText, assistantText, ok := splitEmbeddingText(result.Content)
	if !ok {
		return nil, fmt.Errorf("unrecognized content format")
	}
	createdAt, err := time.Parse(time.RFC3339, result.Metadata["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &recall.Exchange{
		ID:            result.ID,
		OwnerID:       result.Metadata["owner_id"],
		ThreadID:      result.Metadata["thread_id"],
		UserText:      userText,
		AssistantText: assistantText,
		CreatedAt:     createdAt,
		Embedding:     result.Embedding,
		Similarity:    result.Similarity,
	}, nil
}

func splitEmbeddingText(content string) (userText, assistantText string, ok bool) {
	if !strings.HasPrefix(content, "User: ") {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, "User: ")
	idx := strings.Index(rest, "\nAssistant: ")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len("\nAssistant: "):], true
}

func isTooFewDocsError(err error) bool {
	return strings.Contains(err.Error(), "nResults must be") ||
		strings.Contains(err.Error(), "number of documents")
}
