package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config keys that hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|credential)`)

// Redactor scrubs secrets from strings. It knows the formats of the keys
// the service handles (Groq, Stripe, Supabase JWTs) and any literal values
// registered at startup, such as the configured API keys.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra secret format.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret value. Values shorter than 6 characters are
// ignored; redacting them would mangle ordinary log text.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 6 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.literals {
		if l == secret {
			return
		}
	}
	r.literals = append(r.literals, secret)
}

// SetLiterals replaces the registered literal values, after a config reload.
func (r *Redactor) SetLiterals(secrets ...string) {
	r.mu.Lock()
	r.literals = nil
	r.mu.Unlock()
	for _, s := range secrets {
		r.AddLiteral(s)
	}
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap redacts a decoded config tree in place. Values under secret-like
// keys are replaced outright; other strings go through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			if secretKeyPattern.MatchString(k) {
				m[k] = RedactPlaceholder
			} else {
				m[k] = r.Redact(val)
			}
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		}
	}
}

// DefaultPatterns returns the secret formats redacted by default.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Groq API keys.
		regexp.MustCompile(`gsk_[A-Za-z0-9]{20,}`),
		// Stripe secret, restricted and publishable-live keys.
		regexp.MustCompile(`(sk|rk)_(live|test)_[A-Za-z0-9]{16,}`),
		// Stripe webhook signing secrets.
		regexp.MustCompile(`whsec_[A-Za-z0-9]{16,}`),
		// JWTs, which covers Supabase access tokens and anon keys.
		regexp.MustCompile(`eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`),
		// Bearer credentials in echoed headers.
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{16,}`),
	}
}
