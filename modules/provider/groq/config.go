package groq

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/flemzord/substackulous/internal/provider"
)

// Defaults for the Groq API.
const (
	DefaultBaseURL       = "https://api.groq.com/openai/v1"
	DefaultModel         = "llama-3.3-70b-versatile"
	DefaultContextWindow = 8192
	DefaultAPIKeyEnv     = "GROQ_API_KEY"
)

// Config holds the configuration for the Groq provider.
type Config struct {
	BaseURL       string                 `yaml:"base_url"`
	APIKey        string                 `yaml:"api_key"`
	APIKeyEnv     string                 `yaml:"api_key_env"`
	Model         string                 `yaml:"model"`
	ContextWindow int                    `yaml:"context_window"`
	MaxTokens     int                    `yaml:"max_tokens"`
	Headers       map[string]string      `yaml:"headers"`
	Timeout       time.Duration          `yaml:"timeout"`
	Breaker       provider.BreakerConfig `yaml:"breaker"`
}

// defaults sets default values for unset fields and resolves the API key
// from the environment when only api_key_env is given.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = DefaultContextWindow
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.APIKey == "" {
		if c.APIKeyEnv == "" {
			c.APIKeyEnv = DefaultAPIKeyEnv
		}
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
}

// validate returns an error if required fields are missing.
func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider.groq: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider.groq: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.APIKey == "" {
		return fmt.Errorf("provider.groq: api_key is required (or set %s)", c.APIKeyEnv)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("provider.groq: context_window must not be negative")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.groq: max_tokens must not be negative")
	}
	return nil
}
