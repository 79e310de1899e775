package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zjrosen/kai/internal/log"
)

// Registry maps type names to implementations. It is filled at startup,
// sealed, and read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]Type
	builtin map[string]bool
	sealed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[string]Type),
		builtin: make(map[string]bool),
	}
}

// RegisterBuiltin adds a built-in type.
func (r *Registry) RegisterBuiltin(t Type) error {
	return r.add(t, true)
}

// Register adds a user-defined type. A name that is already taken returns
// a *DuplicateNameError and the first registration stays.
func (r *Registry) Register(t Type) error {
	return r.add(t, false)
}

func (r *Registry) add(t Type, builtin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot add %q", ErrSealed, t.Name())
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("agent type has no name")
	}
	if _, ok := r.types[name]; ok {
		return &DuplicateNameError{Name: name, Builtin: r.builtin[name]}
	}
	r.types[name] = t
	r.builtin[name] = builtin
	log.Debug(log.CatRegistry, "Registered agent type", "type", name, "builtin", builtin)
	return nil
}

// Seal stops further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the named type.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Get is Lookup with an ErrUnknownType error.
func (r *Registry) Get(name string) (Type, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// IsBuiltin reports whether name is a built-in type.
func (r *Registry) IsBuiltin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtin[name]
}

// Names returns every registered name, sorted.
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
