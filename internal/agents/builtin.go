package agents

import (
	"github.com/zjrosen/kai/internal/agent"
)

// Builtins returns the built-in agent types.
func Builtins() []agent.Type {
	return []agent.Type{Worker{}, Secretary{}, Boss{}, Recycler{}}
}

// RegisterBuiltins adds every built-in type to r.
func RegisterBuiltins(r *agent.Registry) error {
	for _, t := range Builtins() {
		if err := r.RegisterBuiltin(t); err != nil {
			return err
		}
	}
	return nil
}
