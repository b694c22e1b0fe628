package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Defaults for Resolver.
const (
	DefaultTopK          = 10
	DefaultFallbackLimit = 20
)

// QueryEmbedder embeds a search term.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the read side of VectorStore.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)
}

// CatalogSearcher finds item names containing term, case-insensitively, in
// the product catalog and historical order lines.
type CatalogSearcher interface {
	SearchNames(ctx context.Context, term string, limit int) ([]string, error)
}

// Resolver maps loose food terms ("wings") to the item names actually stored
// in the database ("Buffalo Wings", "Wings Combo").
type Resolver struct {
	embedder      QueryEmbedder
	index         Searcher
	catalog       CatalogSearcher
	topK          int
	fallbackLimit int
}

// NewResolver creates a Resolver. Any dependency may be nil, which disables
// the lookup that needs it. topK <= 0 selects DefaultTopK.
func NewResolver(embedder QueryEmbedder, index Searcher, catalog CatalogSearcher, topK int) *Resolver {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Resolver{
		embedder:      embedder,
		index:         index,
		catalog:       catalog,
		topK:          topK,
		fallbackLimit: DefaultFallbackLimit,
	}
}

// WithFallbackLimit sets how many names each catalog keyword search may
// return. n <= 0 keeps the current limit.
func (r *Resolver) WithFallbackLimit(n int) *Resolver {
	if n > 0 {
		r.fallbackLimit = n
	}
	return r
}

// Resolve returns the sorted, deduplicated item names matching terms. The
// similarity index is tried first; the catalog keyword search runs only when
// the index yields nothing. Lookup failures are logged and produce no names.
func (r *Resolver) Resolve(ctx context.Context, terms []string) []string {
	if len(terms) == 0 {
		return nil
	}

	names, err := r.fromIndex(ctx, terms)
	if err != nil {
		slog.Warn("similarity lookup failed", "error", err, "terms", terms)
	}
	if len(names) > 0 {
		return names
	}

	names, err = r.fromCatalog(ctx, terms)
	if err != nil {
		slog.Warn("catalog name lookup failed", "error", err, "terms", terms)
		return nil
	}
	return names
}

func (r *Resolver) fromIndex(ctx context.Context, terms []string) ([]string, error) {
	if r.embedder == nil || r.index == nil {
		return nil, nil
	}
	set := make(map[string]struct{})
	for _, term := range terms {
		vec, err := r.embedder.Embed(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("embedding %q: %w", term, err)
		}
		hits, err := r.index.Search(ctx, vec, r.topK)
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", term, err)
		}
		for _, h := range hits {
			set[h.Name] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (r *Resolver) fromCatalog(ctx context.Context, terms []string) ([]string, error) {
	if r.catalog == nil {
		return nil, nil
	}
	set := make(map[string]struct{})
	for _, term := range terms {
		found, err := r.catalog.SearchNames(ctx, term, r.fallbackLimit)
		if err != nil {
			return nil, fmt.Errorf("searching catalog for %q: %w", term, err)
		}
		for _, n := range found {
			set[n] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
