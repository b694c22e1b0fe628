package resources

import (
	"context"

	"github.com/soumithganji/DineLytics/internal/catalog"
	"github.com/soumithganji/DineLytics/internal/engine"
	"github.com/soumithganji/DineLytics/internal/retrieval"
	"github.com/soumithganji/DineLytics/internal/sandbox"
)

// The adapters below satisfy the small consumer interfaces with a Lazy
// handle, building it on the first call.

// Completer adapts a lazy completion handle.
type Completer struct{ L *Lazy[engine.Completer] }

func (c Completer) Chat(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error) {
	llm, err := c.L.Get(ctx)
	if err != nil {
		return "", err
	}
	return llm.Chat(ctx, messages, schema)
}

// Embedder adapts a lazy Ollama embedding handle.
type Embedder struct{ L *Lazy[*engine.OllamaEngine] }

func (e Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	eng, err := e.L.Get(ctx)
	if err != nil {
		return nil, err
	}
	return eng.Embed(ctx, text)
}

func (e Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	eng, err := e.L.Get(ctx)
	if err != nil {
		return nil, err
	}
	return eng.EmbedMany(ctx, texts)
}

// Vectors adapts a lazy item index handle.
type Vectors struct{ L *Lazy[*retrieval.SQLiteStore] }

func (v Vectors) Search(ctx context.Context, vector []float32, topK int) ([]retrieval.ScoredRecord, error) {
	s, err := v.L.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, vector, topK)
}

func (v Vectors) Upsert(ctx context.Context, records []retrieval.Record) error {
	s, err := v.L.Get(ctx)
	if err != nil {
		return err
	}
	return s.Upsert(ctx, records)
}

func (v Vectors) Count(ctx context.Context) (int, error) {
	s, err := v.L.Get(ctx)
	if err != nil {
		return 0, err
	}
	return s.Count(ctx)
}

// Catalog adapts a lazy catalog handle.
type Catalog struct{ L *Lazy[CatalogClient] }

func (c Catalog) SearchNames(ctx context.Context, term string, limit int) ([]string, error) {
	cat, err := c.L.Get(ctx)
	if err != nil {
		return nil, err
	}
	return cat.SearchNames(ctx, term, limit)
}

func (c Catalog) AllItems(ctx context.Context) ([]catalog.Item, error) {
	cat, err := c.L.Get(ctx)
	if err != nil {
		return nil, err
	}
	return cat.AllItems(ctx)
}

// Executor adapts a lazy sandbox handle.
type Executor struct{ L *Lazy[sandbox.Executor] }

func (e Executor) Run(ctx context.Context, code string) (string, error) {
	x, err := e.L.Get(ctx)
	if err != nil {
		return "", err
	}
	return x.Run(ctx, code)
}
