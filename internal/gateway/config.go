package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string        `yaml:"bind"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int           `yaml:"max_body_bytes"`

	// Auth protects the admin endpoints (/status, /admin/*, /mcp).
	Auth AuthConfig `yaml:"auth"`

	// AllowedOrigins are browser origin host patterns (path.Match syntax)
	// accepted for CORS and websocket upgrades.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Chat      ChatConfig                  `yaml:"chat"`
	Costs     credit.Costs                `yaml:"costs"`
	RateLimit security.RateLimitConfig    `yaml:"rate_limit"`
	Redirects security.RedirectConfig     `yaml:"redirects"`
	Webhooks  map[string]WebhookSourceCfg `yaml:"webhooks"`

	// MCP mounts the MCP server on /mcp when admin auth is configured.
	MCP bool `yaml:"mcp"`
}

// ChatConfig tunes the chat assistant.
type ChatConfig struct {
	// MaxHistoryTokens is the per-turn history budget, system prompt
	// included. Zero selects the smaller of 8192 and the model window.
	MaxHistoryTokens int `yaml:"max_history_tokens"`
	// PromptsPath overrides the embedded prompt library.
	PromptsPath string `yaml:"prompts_path"`
	// Conversations enables server-side conversation storage.
	Conversations bool `yaml:"conversations"`
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = security.DefaultMaxBodySize
	}
	if c.Costs == nil {
		c.Costs = credit.DefaultCosts()
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
	}
	if c.Chat.MaxHistoryTokens < 0 {
		errs = append(errs, errors.New("gateway: chat.max_history_tokens must not be negative"))
	}
	if err := c.Costs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gateway: costs: %w", err))
	}
	if c.MCP && !c.Auth.IsConfigured() {
		errs = append(errs, errors.New("gateway: mcp requires admin auth"))
	}
	return errors.Join(errs...)
}

// AuthConfig configures authentication for admin endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// WebhookSourceCfg holds per-source webhook configuration. Secret enables
// the generic X-Signature-256 check; sources with their own signature
// scheme (stripe) leave it empty.
type WebhookSourceCfg struct {
	Secret string `yaml:"secret"`
}
