package provider

import (
	"context"
	"errors"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/theimaginaryfoundation/case-digest/digest"
)

type goOpenAIBackend struct {
	client *goopenai.Client
	model  string
}

// NewGoOpenAIBackend sends completions with github.com/sashabaranov/go-openai.
func NewGoOpenAIBackend(e Endpoint) (Backend, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	cfg := goopenai.DefaultConfig(e.APIKey)
	cfg.BaseURL = strings.TrimSuffix(e.BaseURL, "/")
	cfg.HTTPClient = e.HTTPClient()
	return goOpenAIBackend{client: goopenai.NewClientWithConfig(cfg), model: e.Model}, nil
}

func (b goOpenAIBackend) Send(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: b.model,
		Messages: []goopenai.ChatCompletionMessage{{
			Role:    goopenai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return "", &digest.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *goopenai.RequestError
		if errors.As(err, &reqErr) {
			return "", &digest.StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("go-openai: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Backend names accepted by NewBackend.
const (
	BackendOpenAI   = "openai"
	BackendGoOpenAI = "go-openai"
)

// NewBackend selects a backend by name.
func NewBackend(name string, e Endpoint) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendOpenAI:
		return NewOpenAIBackend(e)
	case BackendGoOpenAI:
		return NewGoOpenAIBackend(e)
	default:
		return nil, errors.New("unknown backend: " + name)
	}
}
