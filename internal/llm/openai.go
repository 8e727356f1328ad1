package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eldtechnologies/lucidflow/internal/models"
)

// DefaultModel is used when the request names none.
const DefaultModel = "gpt-4o-mini"

// OpenAI calls an OpenAI-compatible chat completions endpoint. The API key
// comes with each request, so one OpenAI value serves every caller.
type OpenAI struct {
	baseURL string
	model   string
}

// NewOpenAI creates an adapter. An empty baseURL uses the public API.
func NewOpenAI(baseURL, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{baseURL: baseURL, model: model}
}

func (o *OpenAI) Name() string { return "openai" }

// Generate sends the history and message as one chat completion.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	if req.APIKey == "" {
		return "", fmt.Errorf("%w: no api key", ErrAuth)
	}

	cfg := openai.DefaultConfig(req.APIKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	model := req.Model
	if model == "" {
		model = o.model
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req),
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		if isAuthFailure(err) {
			return "", fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// placeholderContent stands in for the empty turns inserted by alternation
// repair; chat completions reject messages without content.
const placeholderContent = " "

// toOpenAIMessages maps turns to chat messages one to one, so the
// conversation keeps alternating after the system message.
func toOpenAIMessages(req Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemInstructions != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstructions,
		})
	}
	for _, turn := range req.History {
		text := turn.Text()
		if text == "" {
			text = placeholderContent
		}
		role := openai.ChatMessageRoleAssistant
		if turn.Role == models.RoleUser {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: text})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})
	return msgs
}

func isAuthFailure(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden
	}
	return false
}
