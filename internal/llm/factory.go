package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownModel is returned for model versions no provider serves.
var ErrUnknownModel = errors.New("unknown model version")

// Settings carries the credentials and tuning shared by all providers.
type Settings struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	MaxRetries       int
	RetryDelay       time.Duration
	MaxTokens        int
}

// NewFromModelVersion maps a model version name onto a provider and the
// concrete model ID to request. "gpt-*" names go to OpenAI; "anthropic"
// selects the configured Anthropic model and "claude-*" names it directly.
func NewFromModelVersion(version string, s Settings) (Provider, string, error) {
	version = strings.TrimSpace(version)
	switch {
	case strings.HasPrefix(version, "gpt-"):
		if s.OpenAIAPIKey == "" {
			return nil, "", errors.New("model " + version + " requires an OpenAI API key")
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     s.OpenAIAPIKey,
			BaseURL:    s.OpenAIBaseURL,
			MaxRetries: s.MaxRetries,
			RetryDelay: s.RetryDelay,
		}), version, nil

	case version == "anthropic" || strings.HasPrefix(version, "claude-"):
		model := s.AnthropicModel
		if version != "anthropic" {
			model = version
		}
		provider, err := NewAnthropicProvider(AnthropicConfig{
			APIKey:       s.AnthropicAPIKey,
			BaseURL:      s.AnthropicBaseURL,
			MaxRetries:   s.MaxRetries,
			RetryDelay:   s.RetryDelay,
			DefaultModel: model,
			MaxTokens:    s.MaxTokens,
		})
		if err != nil {
			return nil, "", err
		}
		return provider, model, nil

	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownModel, version)
	}
}
