package aigen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig selects the model endpoint and sampling parameters.
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Prompt      string
}

// ErrNoAPIKey indicates the client was configured without credentials.
var ErrNoAPIKey = errors.New("missing API key")

// Client generates commit messages through an OpenAI-compatible
// chat-completion endpoint.
type Client struct {
	api    *openai.Client
	model  string
	temp   float32
	tokens int
	prompt *Prompt
}

// NewClient builds a Client from config. BaseURL may point at any
// OpenAI-compatible server.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	prompt, promptErr := NewPrompt(cfg.Prompt)
	if promptErr != nil {
		return nil, promptErr
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		model:  cfg.Model,
		temp:   cfg.Temperature,
		tokens: cfg.MaxTokens,
		prompt: prompt,
	}, nil
}

// Generate implements Generator: render the prompt, run one chat completion,
// return the trimmed text.
func (c *Client) Generate(ctx context.Context, in Input) (string, error) {
	text, renderErr := c.prompt.Render(in)
	if renderErr != nil {
		return "", renderErr
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temp,
		MaxTokens:   c.tokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	message := strings.TrimSpace(resp.Choices[0].Message.Content)
	if message == "" {
		return "", ErrEmptyCompletion
	}

	return message, nil
}
