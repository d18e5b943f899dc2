package supabase

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds the configuration for the Supabase auth module.
type Config struct {
	URL        string        `yaml:"url"`
	AnonKey    string        `yaml:"anon_key"`
	AnonKeyEnv string        `yaml:"anon_key_env"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	c.URL = strings.TrimRight(c.URL, "/")
	if c.AnonKey == "" {
		if c.AnonKeyEnv == "" {
			c.AnonKeyEnv = "SUPABASE_ANON_KEY"
		}
		c.AnonKey = os.Getenv(c.AnonKeyEnv)
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
	if c.CacheSize == 0 {
		c.CacheSize = 10000
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("auth.supabase: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("auth.supabase: url must be an http(s) URL, got %q", c.URL)
	}
	if c.AnonKey == "" {
		return fmt.Errorf("auth.supabase: anon_key is required (or set %s)", c.AnonKeyEnv)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("auth.supabase: cache_ttl must not be negative")
	}
	return nil
}
