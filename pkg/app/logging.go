package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/substackulous/internal/config"
	"github.com/flemzord/substackulous/internal/security"
)

// NewLogger builds the process logger from the logging section. Every record
// passes through the redactor before reaching w.
func NewLogger(w io.Writer, cfg config.LoggingConfig, redactor *security.Redactor) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// minSecretLen keeps short values such as "1" or "dev" out of the redactor.
const minSecretLen = 8

// Secrets returns the values to scrub from logs: credentials found in the
// configuration plus environment variables that look like credentials.
func Secrets(cfg *config.Config) []string {
	out := config.Secrets(cfg)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || len(value) < minSecretLen {
			continue
		}
		if isSecretEnv(name) {
			out = append(out, value)
		}
	}
	return out
}

func isSecretEnv(name string) bool {
	name = strings.ToUpper(name)
	for _, marker := range []string{"KEY", "SECRET", "TOKEN", "PASSWORD"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// openAuditLog opens the audit log in append mode. Relative paths live in
// the data directory.
func openAuditLog(path, dataDir string) (*os.File, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}
