package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// ChatRequest is one chat-completion call against a text model.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
	JSONMode    bool
}

// ChatCompleter abstracts the text-model backend so the pipeline can be
// tested without network access.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// GroqClient talks to Groq's OpenAI-compatible chat completions API.
type GroqClient struct {
	client openai.Client
}

// NewGroqClient creates a chat client for the given API key. baseURL is
// overridable for tests; empty selects the Groq endpoint.
func NewGroqClient(apiKey, baseURL string) *GroqClient {
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &GroqClient{client: client}
}

// Complete runs one chat completion and returns the raw message content.
func (g *GroqClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(req.MaxTokens),
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("chat completion returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}
