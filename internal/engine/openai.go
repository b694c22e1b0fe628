package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIBaseURL is the NVIDIA NIM endpoint, which speaks the OpenAI
// chat completions protocol.
const DefaultOpenAIBaseURL = "https://integrate.api.nvidia.com/v1"

// OpenAIEngine talks to an OpenAI-compatible chat completions endpoint.
type OpenAIEngine struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIEngine creates an engine for model at baseURL. An empty baseURL
// selects DefaultOpenAIBaseURL.
func NewOpenAIEngine(baseURL, apiKey, model string, temperature float64) *OpenAIEngine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithBaseURL(strings.TrimSpace(baseURL)),
	)
	return &OpenAIEngine{client: client, model: model, temperature: temperature}
}

// Chat ignores schema; structured replies are requested in the prompt.
func (e *OpenAIEngine) Chat(ctx context.Context, messages []Message, _ *Schema) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(e.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(e.temperature),
	}
	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
