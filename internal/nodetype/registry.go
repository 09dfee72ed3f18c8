package nodetype

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the standard node types and any native modules registered
// on top of them. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*Nodetype
	natives  map[string]bool
	standard map[string]bool
	logger   *slog.Logger
}

// NewRegistry returns a registry preloaded with the standard node types.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		types:    make(map[string]*Nodetype),
		natives:  make(map[string]bool),
		standard: make(map[string]bool),
		logger:   logger,
	}
	for _, def := range StandardDefinitions() {
		t, err := New(def, false, logger)
		if err != nil {
			// Standard definitions are static; failing here is a programming error.
			panic(fmt.Sprintf("invalid standard nodetype %s: %v", def.Name, err))
		}
		r.types[def.Name] = t
		r.standard[def.Name] = true
	}
	return r
}

// Get returns the node type registered under name.
func (r *Registry) Get(name string) (*Nodetype, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// IsNative reports whether name is a registered native module.
func (r *Registry) IsNative(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.natives[name]
}

// RegisterNative adds or replaces a native module type. Replacing a standard
// type is only allowed when the slot, gate and parameter layout is unchanged.
func (r *Registry) RegisterNative(def Definition) (*Nodetype, error) {
	t, err := New(def, true, r.logger)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.standard[def.Name] {
		if def.Name == Nodespace {
			return nil, fmt.Errorf("nodetype %s cannot be overridden", def.Name)
		}
		if !r.types[def.Name].CompatibleWith(t) {
			return nil, fmt.Errorf("nodetype %s: native override must keep slots, gates and parameters", def.Name)
		}
	}
	r.types[def.Name] = t
	r.natives[def.Name] = true
	return t, nil
}

// ReplaceNatives drops every native module and registers defs instead.
// Either all definitions are accepted or the registry is left unchanged.
func (r *Registry) ReplaceNatives(defs []Definition) error {
	next := NewRegistry(r.logger)
	for _, def := range defs {
		if _, err := next.RegisterNative(def); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = next.types
	r.natives = next.natives
	return nil
}

// Natives returns the definitions of all native modules, sorted by name.
func (r *Registry) Natives() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.natives))
	for name := range r.natives {
		out = append(out, r.types[name].Definition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered type name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
