package retrieval

import (
	"context"
	"time"
)

// VectorStore is the similarity-search index over catalog item names.
type VectorStore interface {
	// Upsert inserts records, replacing any with the same ID.
	Upsert(ctx context.Context, records []Record) error

	// Search returns the topK records most similar to vector, best first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// Count returns the number of indexed records.
	Count(ctx context.Context) (int, error)
}

// Record is one indexed item name.
type Record struct {
	ID        string
	Name      string
	Source    string // SourceProduct or SourceOrderItem
	Embedding []float32
	UpdatedAt time.Time
}

// Record sources.
const (
	SourceProduct   = "product"
	SourceOrderItem = "order_item"
)

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
