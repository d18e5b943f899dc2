package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// registry holds every module compiled into the binary, keyed by ID.
var registry = struct {
	sync.RWMutex
	byID map[ModuleID]ModuleInfo
}{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the registry. Modules call it from init().
// It panics on an ID that is not of the form "namespace.name", on a nil
// constructor and on a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := checkID(info.ID); err != nil {
		panic(err.Error())
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, exists := registry.byID[info.ID]; exists {
		panic(fmt.Sprintf("module already registered: %s", info.ID))
	}
	registry.byID[info.ID] = info
}

func checkID(id ModuleID) error {
	ns, name, ok := strings.Cut(string(id), ".")
	if !ok || ns == "" || name == "" {
		return fmt.Errorf("module ID %q must be namespace.name (e.g. provider.groq)", id)
	}
	return nil
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	return collect(func(ModuleID) bool { return true })
}

// ModulesIn returns the modules of one namespace sorted by ID, e.g. "auth"
// yields auth.supabase.
func ModulesIn(namespace string) []ModuleInfo {
	return collect(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func collect(keep func(ModuleID) bool) []ModuleInfo {
	registry.RLock()
	defer registry.RUnlock()

	var out []ModuleInfo
	for id, info := range registry.byID {
		if keep(id) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	registry.byID = make(map[ModuleID]ModuleInfo)
}
