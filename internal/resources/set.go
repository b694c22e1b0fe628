package resources

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/soumithganji/DineLytics/internal/catalog"
	"github.com/soumithganji/DineLytics/internal/config"
	"github.com/soumithganji/DineLytics/internal/engine"
	"github.com/soumithganji/DineLytics/internal/pipeline"
	"github.com/soumithganji/DineLytics/internal/retrieval"
	"github.com/soumithganji/DineLytics/internal/sandbox"
	"github.com/soumithganji/DineLytics/internal/schema"
)

// Schema is the collection inventory and rendered schema description given
// to the code generator.
type Schema struct {
	Collections []string
	Text        string
}

// LoadSchema renders the schema index at path. A missing or unreadable index
// is logged and yields the default collection inventory with no description.
func LoadSchema(path string) Schema {
	idx, text, err := schema.Load(path)
	if err != nil {
		slog.Warn("schema index unavailable, generating without schemas", "path", path, "error", err)
		return Schema{Collections: pipeline.DefaultCollections}
	}
	collections := idx.Collections()
	if len(collections) == 0 {
		collections = pipeline.DefaultCollections
	}
	return Schema{Collections: collections, Text: text}
}

// CatalogClient is the item-name view of the restaurant database.
type CatalogClient interface {
	SearchNames(ctx context.Context, term string, limit int) ([]string, error)
	AllItems(ctx context.Context) ([]catalog.Item, error)
	Close(ctx context.Context) error
}

// Set is every lazily built handle the chat service uses.
type Set struct {
	Completer *Lazy[engine.Completer]
	Embedder  *Lazy[*engine.OllamaEngine]
	Vectors   *Lazy[*retrieval.SQLiteStore]
	Catalog   *Lazy[CatalogClient]
	Executor  *Lazy[sandbox.Executor]
}

// NewSet wires handles from cfg. db backs the item vector table.
func NewSet(cfg config.Config, db *sql.DB) *Set {
	return &Set{
		Completer: NewLazy("completion model", func(context.Context) (engine.Completer, error) {
			return engine.NewCompleter(engine.Options{
				Provider:    cfg.LLM.Provider,
				BaseURL:     cfg.LLM.BaseURL,
				APIKey:      cfg.LLM.APIKey,
				Model:       cfg.LLM.Model,
				Temperature: cfg.LLM.Temperature,
				MaxTokens:   int64(cfg.LLM.MaxTokens),
			})
		}),
		Embedder: NewLazy("embedding model", func(ctx context.Context) (*engine.OllamaEngine, error) {
			eng := engine.NewOllamaEngine(cfg.Ollama.BaseURL, "", cfg.Ollama.EmbedModel, 0)
			if !cfg.Ollama.AutoPull {
				if !eng.IsRunning(ctx) {
					return nil, fmt.Errorf("ollama is not reachable at %s", cfg.Ollama.BaseURL)
				}
				return eng, nil
			}
			w := progressLog("embedding model")
			defer w.Close()
			if err := engine.EnsureReady(ctx, eng, eng.Models(), w); err != nil {
				return nil, err
			}
			return eng, nil
		}),
		Vectors: NewLazy("item index", func(ctx context.Context) (*retrieval.SQLiteStore, error) {
			s := retrieval.NewSQLiteStore(db)
			if _, err := s.Count(ctx); err != nil {
				return nil, err
			}
			return s, nil
		}),
		Catalog: NewLazy("catalog", func(ctx context.Context) (CatalogClient, error) {
			c, err := catalog.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
			if err != nil {
				return nil, err
			}
			return c, nil
		}),
		Executor: NewLazy("sandbox", func(context.Context) (sandbox.Executor, error) {
			settings := sandbox.Settings{MongoURI: cfg.Mongo.URI, DatabaseName: cfg.Mongo.Database}
			switch cfg.Sandbox.Mode {
			case config.SandboxDocker:
				if _, err := exec.LookPath("docker"); err != nil {
					return nil, fmt.Errorf("docker sandbox: %w", err)
				}
				return sandbox.NewDockerRunner(cfg.Sandbox.Image, cfg.Sandbox.Network, settings), nil
			case config.SandboxLocal, "":
				if _, err := exec.LookPath(cfg.Sandbox.Interpreter); err != nil {
					return nil, fmt.Errorf("local sandbox: %w", err)
				}
				return sandbox.NewLocalRunner(cfg.Sandbox.Interpreter, []string{"-"}, settings), nil
			default:
				return nil, fmt.Errorf("unknown sandbox mode %q", cfg.Sandbox.Mode)
			}
		}),
	}
}

// Warmers returns every handle, for Prefetch.
func (s *Set) Warmers() []Warmer {
	return []Warmer{s.Completer, s.Embedder, s.Vectors, s.Catalog, s.Executor}
}

// Close releases handles that hold connections.
func (s *Set) Close(ctx context.Context) error {
	if c, ok := s.Catalog.Peek(); ok {
		return c.Close(ctx)
	}
	return nil
}

// progressLog returns a writer that logs each line written to it.
func progressLog(resource string) io.WriteCloser {
	r, w := io.Pipe()
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			slog.Info("model setup", "resource", resource, "status", sc.Text())
		}
	}()
	return w
}
