// Package engine abstracts the hosted completion model and the embedding
// model behind small interfaces, with Ollama, OpenAI-compatible and
// Anthropic backends.
package engine

import (
	"context"
	"fmt"
)

// Completer produces one assistant reply for a list of messages. When schema
// is non-nil the backend is asked for JSON output of that shape if it
// supports structured output; callers must still validate the reply.
type Completer interface {
	Chat(ctx context.Context, messages []Message, schema *Schema) (string, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that accept several inputs in
// one request.
type BatchEmbedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelManager is implemented by backends that host models locally and can
// download missing ones.
type ModelManager interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Providers accepted by NewCompleter.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Options selects and configures the completion backend.
type Options struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// NewCompleter returns the completion backend named by opts.Provider.
// "openai" covers any OpenAI-compatible endpoint, including NVIDIA NIM.
func NewCompleter(opts Options) (Completer, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("completion model is not configured")
	}
	switch opts.Provider {
	case ProviderOpenAI, "":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai-compatible provider requires an API key")
		}
		return NewOpenAIEngine(opts.BaseURL, opts.APIKey, opts.Model, opts.Temperature), nil
	case ProviderAnthropic:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicEngine(opts.BaseURL, opts.APIKey, opts.Model, opts.Temperature, opts.MaxTokens), nil
	case ProviderOllama:
		return NewOllamaEngine(opts.BaseURL, opts.Model, "", opts.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", opts.Provider)
	}
}
