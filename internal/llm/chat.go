package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const DefaultModel = "gpt-3.5-turbo-1106"

var ErrEmptyResponse = errors.New("chat completion returned no choices")

// Client sends single-turn prompts. It keeps no history.
type Client struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

func NewClient(api *openai.Client, model string, logger *zap.Logger) *Client {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, model: model, logger: logger}
}

// Model is the model used when Complete is called without one.
func (c *Client) Model() string {
	return c.model
}

// Complete sends prompt as a single user message and returns the first
// choice's content. An empty model selects the client default.
func (c *Client) Complete(ctx context.Context, prompt string, model string) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = c.model
	}

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("chat completion finished",
		zap.String("model", model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp.Choices[0].Message.Content, nil
}
