// Package llm wraps the chat-completion API and builds the shared OpenAI
// client used by the transcription and chat clients.
package llm

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var ErrMissingAPIKey = errors.New("OpenAI API key is not set (OPENAI_API_KEY)")

// APIConfig configures the OpenAI client shared by a process.
type APIConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewAPIClient builds the one OpenAI client a process passes around.
func NewAPIClient(cfg APIConfig) (*openai.Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	clientCfg := openai.DefaultConfig(key)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return openai.NewClientWithConfig(clientCfg), nil
}
