package config

import (
	"slices"
	"strings"
)

// Resolve returns a sorted list of module IDs from the configuration.
// The deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HasNamespace reports whether a module of the given namespace (the part of
// the ID before the first dot) is configured.
func HasNamespace(cfg *Config, namespace string) bool {
	for id := range cfg.Modules {
		if ns, _, _ := strings.Cut(id, "."); ns == namespace {
			return true
		}
	}
	return false
}
