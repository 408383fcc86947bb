package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theimaginaryfoundation/case-digest/digest"
)

// Endpoint describes an OpenAI-compatible chat completion service.
type Endpoint struct {
	// BaseURL is the API root, e.g. https://llm.example.com/v1.
	BaseURL string
	Model   string
	APIKey  string

	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification. Off by default.
	InsecureSkipVerify bool
}

// HTTPClient builds the client shared by every backend: fixed per-request timeout and
// optional TLS verification bypass.
func (e Endpoint) HTTPClient() *http.Client {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if e.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via -insecure-skip-verify
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (e Endpoint) validate() error {
	if strings.TrimSpace(e.BaseURL) == "" {
		return errors.New("endpoint base URL is empty")
	}
	if strings.TrimSpace(e.Model) == "" {
		return errors.New("endpoint model is empty")
	}
	if e.APIKey == "" {
		return errors.New("endpoint API key is empty")
	}
	return nil
}

type openAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend sends completions with github.com/openai/openai-go. The SDK's own
// retries are disabled so Client owns the retry policy.
func NewOpenAIBackend(e Endpoint) (Backend, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	client := openai.NewClient(
		option.WithAPIKey(e.APIKey),
		option.WithBaseURL(strings.TrimSuffix(e.BaseURL, "/")+"/"),
		option.WithHTTPClient(e.HTTPClient()),
		option.WithMaxRetries(0),
	)
	return openAIBackend{client: &client, model: e.Model}, nil
}

func (b openAIBackend) Send(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &digest.StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
