package perception

import (
	"fmt"
	"time"

	"momentum/internal/config"
)

// NewClientFromConfig creates an LLM client from the loaded configuration.
func NewClientFromConfig(cfg config.LLMConfig) (LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured; set ANTHROPIC_API_KEY, OPENAI_API_KEY, or ZAI_API_KEY")
	}

	timeout := 120 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = d
		}
	}

	switch cfg.Provider {
	case "anthropic", "":
		c := DefaultAnthropicConfig(cfg.APIKey)
		c.Timeout = timeout
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		return NewAnthropicClientWithConfig(c), nil

	case "openai", "zai":
		c := DefaultOpenAIConfig(cfg.APIKey)
		c.Timeout = timeout
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		return NewOpenAIClientWithConfig(c), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s (valid: anthropic, openai, zai)", cfg.Provider)
	}
}
