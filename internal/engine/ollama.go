package engine

import (
	"context"
	"fmt"

	"github.com/soumithganji/DineLytics/internal/ollama"
)

// OllamaEngine adapts internal/ollama.Client to Completer, Embedder and
// ModelManager. Either model may be empty when the engine is only used for
// the other role.
type OllamaEngine struct {
	client      *ollama.Client
	chatModel   string
	embedModel  string
	temperature float64
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL, chatModel, embedModel string, temperature float64) *OllamaEngine {
	return &OllamaEngine{
		client:      ollama.New(baseURL),
		chatModel:   chatModel,
		embedModel:  embedModel,
		temperature: temperature,
	}
}

// Models returns the configured model names, chat model first.
func (e *OllamaEngine) Models() []string {
	var out []string
	for _, m := range []string{e.chatModel, e.embedModel} {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func (e *OllamaEngine) Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	if e.chatModel == "" {
		return "", fmt.Errorf("ollama chat model is not configured")
	}
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	var s *ollama.Schema
	if jsonSchema != nil {
		s = &ollama.Schema{
			Type:     jsonSchema.Type,
			Required: jsonSchema.Required,
		}
		if jsonSchema.Properties != nil {
			s.Properties = make(map[string]ollama.SchemaProperty, len(jsonSchema.Properties))
			for k, v := range jsonSchema.Properties {
				s.Properties[k] = ollama.SchemaProperty{Type: v.Type, Description: v.Description}
			}
		}
	}

	temp := e.temperature
	return e.client.Chat(ctx, e.chatModel, msgs, s, &ollama.Options{Temperature: &temp})
}

func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.embedModel == "" {
		return nil, fmt.Errorf("ollama embedding model is not configured")
	}
	return e.client.Embed(ctx, e.embedModel, text)
}

func (e *OllamaEngine) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if e.embedModel == "" {
		return nil, fmt.Errorf("ollama embedding model is not configured")
	}
	return e.client.EmbedMany(ctx, e.embedModel, texts)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
