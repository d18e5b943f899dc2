// Package core provides the module system of substackulous: registration,
// lifecycle management and lazy service discovery between modules.
package core

// ModuleID is a dotted, namespaced module identifier such as "provider.groq"
// or "gateway.http". The namespace is the part before the first dot.
type ModuleID string

// Namespace returns the leading segment of the ID.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// Name returns the part after the namespace, or the whole ID if it has no
// namespace.
func (id ModuleID) Name() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[i+1:])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID uniquely identifies the module.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is implemented by every substackulous module.
type Module interface {
	ModuleInfo() ModuleInfo
}
