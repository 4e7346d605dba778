// Package runtime binds schemas to a storage adapter and runs resource
// operations through the permission, hook and validation pipeline.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/pocket/core/events"
	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/ports"
	"github.com/rs/zerolog"
)

// Registry errors.
var (
	ErrResourceExists  = errors.New("resource already registered")
	ErrUnknownResource = errors.New("unknown resource")
)

// Runtime is the registry of resources sharing one storage adapter.
type Runtime struct {
	mu        sync.RWMutex
	resources map[string]*Resource

	adapter   storage.Adapter
	functions *FunctionRegistry
	events    *events.Bus
	observer  ports.Observer
	logger    zerolog.Logger
}

// Config configures the runtime.
type Config struct {
	// Logger for the runtime and its resources.
	Logger zerolog.Logger

	// Observer records every resource operation (optional).
	Observer ports.Observer

	// Events receives write notifications. A private bus is created when
	// nil.
	Events *events.Bus
}

// New creates a runtime over adapter.
func New(adapter storage.Adapter, config Config) *Runtime {
	if config.Observer == nil {
		config.Observer = ports.NopObserver{}
	}
	if config.Events == nil {
		config.Events = events.NewBus(config.Logger)
	}

	return &Runtime{
		resources: make(map[string]*Resource),
		adapter:   adapter,
		functions: NewFunctionRegistry(),
		events:    config.Events,
		observer:  config.Observer,
		logger:    config.Logger,
	}
}

// Adapter returns the shared storage adapter.
func (r *Runtime) Adapter() storage.Adapter {
	return r.adapter
}

// Events returns the bus write notifications are published on.
func (r *Runtime) Events() *events.Bus {
	return r.events
}

// Functions returns the registry of named hooks used by definitions.
func (r *Runtime) Functions() *FunctionRegistry {
	return r.functions
}

// Resource registers a resource bound to the shared adapter and declares
// its unique indices. Register resources once the adapter is ready:
// declarations are logged and dropped by adapters that are not.
func (r *Runtime) Resource(name string, s *schema.Schema) (*Resource, error) {
	if name == "" {
		return nil, errors.New("resource name is required")
	}
	if s == nil {
		return nil, fmt.Errorf("resource %q: schema is required", name)
	}

	r.mu.Lock()
	if _, exists := r.resources[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrResourceExists, name)
	}
	res := &Resource{
		name:     name,
		schema:   s,
		adapter:  r.adapter,
		events:   r.events,
		observer: r.observer,
		logger:   r.logger.With().Str("resource", name).Logger(),
	}
	r.resources[name] = res
	r.mu.Unlock()

	for _, idx := range s.Indices() {
		if !idx.Unique {
			continue
		}
		r.adapter.DeclareUniqueIndex(context.Background(), name, idx.Field)
	}

	r.logger.Debug().
		Str("resource", name).
		Int("fields", len(s.Fields())).
		Msg("registered resource")
	return res, nil
}

// Lookup returns a registered resource.
func (r *Runtime) Lookup(name string) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return res, nil
}

// Names returns the registered resource names, sorted.
func (r *Runtime) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load registers a resource from its definition, attaching the hook
// functions it names.
func (r *Runtime) Load(def schema.Definition) (*Resource, error) {
	s, err := def.Schema()
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", def.Resource, err)
	}
	if err := r.functions.attach(s, def.Hooks); err != nil {
		return nil, fmt.Errorf("resource %q: %w", def.Resource, err)
	}
	return r.Resource(def.Resource, s)
}

// LoadDir loads every resource definition under dir.
func (r *Runtime) LoadDir(dir string) error {
	defs, err := schema.ParseDir(dir)
	if err != nil {
		return fmt.Errorf("parse resources from %q: %w", dir, err)
	}

	for _, def := range defs {
		if _, err := r.Load(def); err != nil {
			return err
		}
	}
	return nil
}
