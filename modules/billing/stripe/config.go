package stripe

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flemzord/substackulous/internal/billing"
)

// DefaultBaseURL is the Stripe API root.
const DefaultBaseURL = "https://api.stripe.com"

// Config holds the configuration for the Stripe module.
type Config struct {
	BaseURL          string         `yaml:"base_url"`
	SecretKey        string         `yaml:"secret_key"`
	SecretKeyEnv     string         `yaml:"secret_key_env"`
	WebhookSecret    string         `yaml:"webhook_secret"`
	WebhookSecretEnv string         `yaml:"webhook_secret_env"`
	WebhookTolerance time.Duration  `yaml:"webhook_tolerance"`
	SuccessURL       string         `yaml:"success_url"`
	CancelURL        string         `yaml:"cancel_url"`
	Timeout          time.Duration  `yaml:"timeout"`
	Plans            []billing.Plan `yaml:"plans"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.SecretKey == "" {
		if c.SecretKeyEnv == "" {
			c.SecretKeyEnv = "STRIPE_SECRET_KEY"
		}
		c.SecretKey = os.Getenv(c.SecretKeyEnv)
	}
	if c.WebhookSecret == "" {
		if c.WebhookSecretEnv == "" {
			c.WebhookSecretEnv = "STRIPE_WEBHOOK_SECRET"
		}
		c.WebhookSecret = os.Getenv(c.WebhookSecretEnv)
	}
	if c.WebhookTolerance == 0 {
		c.WebhookTolerance = 5 * time.Minute
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, fmt.Errorf("billing.stripe: secret_key is required (or set %s)", c.SecretKeyEnv))
	}
	if c.WebhookSecret == "" {
		errs = append(errs, fmt.Errorf("billing.stripe: webhook_secret is required (or set %s)", c.WebhookSecretEnv))
	}
	if c.SuccessURL == "" || c.CancelURL == "" {
		errs = append(errs, errors.New("billing.stripe: success_url and cancel_url are required"))
	}
	if len(c.Plans) == 0 {
		errs = append(errs, errors.New("billing.stripe: at least one plan is required"))
	}
	if c.WebhookTolerance < 0 {
		errs = append(errs, errors.New("billing.stripe: webhook_tolerance must not be negative"))
	}
	return errors.Join(errs...)
}
