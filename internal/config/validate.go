package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/flemzord/substackulous/internal/core"
)

// Validate checks the structural validity of a Config: the version, the
// top-level sections and that every module ID is registered. Module
// sections themselves are validated by their modules.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateLogging(cfg.Logging)...)
	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	return errors.Join(errs...)
}

// RequireNamespaces reports every namespace with no configured module.
func RequireNamespaces(cfg *Config, namespaces ...string) error {
	var errs []error
	for _, ns := range namespaces {
		if HasNamespace(cfg, ns) {
			continue
		}
		err := fmt.Errorf("config: a %s.* module is required", ns)
		if mods := core.ModulesIn(ns); len(mods) > 0 {
			ids := make([]string, len(mods))
			for i, m := range mods {
				ids[i] = string(m.ID)
			}
			err = fmt.Errorf("%w (available: %s)", err, strings.Join(ids, ", "))
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if l.Level != "" {
		if _, err := ParseLevel(l.Level); err != nil {
			errs = append(errs, err)
		}
	}
	if l.Format != "" && !slices.Contains([]string{"text", "json"}, l.Format) {
		errs = append(errs, fmt.Errorf("config: logging.format %q must be text or json", l.Format))
	}
	return errs
}

// ParseLevel maps a logging.level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: logging.level %q: %w", s, err)
	}
	return lvl, nil
}
