package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is the completion model used when none is configured.
const DefaultModel = "llama-3.3-70b-versatile"

// Client issues single-turn completion requests against an OpenAI-compatible
// chat-completions backend. It makes exactly one attempt per call; retry
// policy, if any, belongs to the caller.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a completion client.
func NewClient(config Config) *Client {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	} else {
		clientConfig.BaseURL = DefaultBaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.Timeout) * time.Second}
	}

	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		api:   openai.NewClientWithConfig(clientConfig),
		model: model,
	}
}

// Complete sends one system+user turn and returns the finished reply. Any
// non-success status, network failure or response missing the reply field is
// reported as a *CompletionError; a partial response is never returned.
func (c *Client) Complete(ctx context.Context, systemPrompt, userText string, p Params) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Stream:      false,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &CompletionError{Status: apiErr.HTTPStatusCode, Cause: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &CompletionError{Status: reqErr.HTTPStatusCode, Cause: reqErr.Error()}
		}
		return "", &CompletionError{Cause: err.Error()}
	}

	if len(resp.Choices) == 0 {
		return "", &CompletionError{Cause: "response contained no choices"}
	}
	reply := resp.Choices[0].Message.Content
	if reply == "" {
		return "", &CompletionError{Cause: "response contained no message content"}
	}
	return reply, nil
}
