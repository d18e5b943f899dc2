package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment variables in raw and decodes it. Unknown
// top-level keys are rejected; module sections are kept as raw nodes and
// checked by their modules.
func Parse(raw []byte) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("expanding variables: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no env value).
// Comment lines are left alone so documented examples need no value.
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	lines := bytes.SplitAfter(raw, []byte("\n"))
	for i, line := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			continue
		}
		lines[i] = envPattern.ReplaceAllFunc(line, func(match []byte) []byte {
			subs := envPattern.FindSubmatch(match)
			name := string(subs[1])

			if value, ok := os.LookupEnv(name); ok {
				return []byte(value)
			}
			if subs[2] != nil {
				return subs[2]
			}
			errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
			return match
		})
	}

	return bytes.Join(lines, nil), errors.Join(errs...)
}
