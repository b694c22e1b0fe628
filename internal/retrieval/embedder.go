package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/soumithganji/DineLytics/internal/engine"
)

// Embedder wraps an engine.Embedder with error context and batching.
type Embedder struct {
	engine engine.Embedder
}

// NewEmbedder creates an Embedder backed by e.
func NewEmbedder(e engine.Embedder) *Embedder {
	return &Embedder{engine: e}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for texts in input order, in one
// request when the backend supports it and concurrently otherwise. Returns
// nil (not error) for empty input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if b, ok := e.engine.(engine.BatchEmbedder); ok {
		vecs, err := b.EmbedMany(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
		}
		return vecs, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.engine.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
