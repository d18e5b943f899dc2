package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrURLBlocked is returned for a redirect URL outside the allow list.
var ErrURLBlocked = errors.New("redirect URL not allowed")

// RedirectConfig lists the hosts checkout may send users back to.
type RedirectConfig struct {
	// AllowDomains matches the host and its subdomains. Empty allows no
	// caller-supplied redirects at all.
	AllowDomains []string `yaml:"allow_domains"`
	// AllowHTTP permits plain http, for local development.
	AllowHTTP bool `yaml:"allow_http"`
}

// RedirectFilter validates caller-supplied success and cancel URLs so the
// checkout flow cannot be turned into an open redirect.
type RedirectFilter struct {
	allow     []string
	allowHTTP bool
}

// NewRedirectFilter returns a filter for cfg.
func NewRedirectFilter(cfg RedirectConfig) *RedirectFilter {
	allow := make([]string, 0, len(cfg.AllowDomains))
	for _, d := range cfg.AllowDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allow = append(allow, d)
		}
	}
	return &RedirectFilter{allow: allow, allowHTTP: cfg.AllowHTTP}
}

// Check returns nil if rawURL may be used as a redirect target.
func (f *RedirectFilter) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrURLBlocked, err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !f.allowHTTP {
			return fmt.Errorf("%w: %s is not https", ErrURLBlocked, rawURL)
		}
	default:
		return fmt.Errorf("%w: scheme %q", ErrURLBlocked, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: userinfo is not allowed", ErrURLBlocked)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrURLBlocked)
	}
	for _, d := range f.allow {
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrURLBlocked, host)
}

// IsConfigured reports whether any domain is allowed.
func (f *RedirectFilter) IsConfigured() bool {
	return len(f.allow) > 0
}
