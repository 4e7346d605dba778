package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/pocket/core/schema"
)

// FunctionRegistry holds named hooks that resource definitions refer to
// from YAML (hooks.before.create: [slugify]).
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]schema.Hook
}

// NewFunctionRegistry creates an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		funcs: make(map[string]schema.Hook),
	}
}

// Register adds a hook under name, replacing any previous one.
func (r *FunctionRegistry) Register(name string, fn schema.Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the hook registered under name.
func (r *FunctionRegistry) Lookup(name string) (schema.Hook, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("hook function %q not registered", name)
	}
	return fn, nil
}

// Has checks if a hook is registered.
func (r *FunctionRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// List returns the registered names, sorted.
func (r *FunctionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// attach resolves every reference in refs and registers the hooks on s.
// Nothing is attached if any name is unknown.
func (r *FunctionRegistry) attach(s *schema.Schema, refs schema.HookRefs) error {
	type binding struct {
		before bool
		method string
		hook   schema.Hook
	}

	var bindings []binding
	for _, phase := range []struct {
		before bool
		refs   map[string][]string
	}{{true, refs.Before}, {false, refs.After}} {
		methods := make([]string, 0, len(phase.refs))
		for m := range phase.refs {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, method := range methods {
			for _, name := range phase.refs[method] {
				fn, err := r.Lookup(name)
				if err != nil {
					return err
				}
				bindings = append(bindings, binding{phase.before, method, fn})
			}
		}
	}

	for _, b := range bindings {
		if b.before {
			s.Before(b.method, b.hook)
		} else {
			s.After(b.method, b.hook)
		}
	}
	return nil
}
