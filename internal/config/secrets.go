package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// secretKeys are mapping keys whose values are credentials.
var secretKeys = []string{"api_key", "secret", "secret_key", "token", "password", "pass"}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
}

// Secrets returns every credential value found in the module sections plus
// the security.redact literals, for the log redactor.
func Secrets(cfg *Config) []string {
	out := append([]string(nil), cfg.Security.Redact...)
	for _, id := range Resolve(cfg) {
		node := cfg.Modules[id]
		out = collectSecrets(&node, out)
	}
	for _, v := range cfg.Telemetry.Headers {
		out = append(out, v)
	}
	return out
}

func collectSecrets(n *yaml.Node, out []string) []string {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			out = collectSecrets(c, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if val.Kind == yaml.ScalarNode && isSecretKey(key.Value) && val.Value != "" {
				out = append(out, val.Value)
				continue
			}
			out = collectSecrets(val, out)
		}
	}
	return out
}
