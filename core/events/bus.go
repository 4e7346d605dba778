// Package events provides an in-process publish/subscribe bus.
// The runtime publishes "<resource>.<action>" after every successful write.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Write actions published by the runtime.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionRemoved = "removed"
)

// Event represents a published event.
type Event struct {
	// Name is "<resource>.<action>", e.g. "posts.created".
	Name string

	// Resource is the resource that changed.
	Resource string

	// Action is one of the Action* constants.
	Action string

	// Records holds the affected records after the write. Empty for removals.
	Records []map[string]any

	// Count is the number of affected records.
	Count int
}

// NewEvent builds an event named after resource and action.
func NewEvent(resource, action string, records []map[string]any, count int) Event {
	return Event{
		Name:     resource + "." + action,
		Resource: resource,
		Action:   action,
		Records:  records,
		Count:    count,
	}
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event.
// Supports wildcard subscriptions:
//   - "posts.created" - exact match
//   - "posts.*" - all events of a resource
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish emits an event to all matching handlers.
// Handlers are called synchronously: exact subscribers first, then resource
// wildcards, then global wildcards. Handler errors are logged, never
// returned.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Int("count", event.Count).
		Int("handlers", len(matched)).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// HasSubscribers checks if any handlers are registered for an event.
func (b *Bus) HasSubscribers(event string) bool {
	return len(b.match(event)) > 0
}

// match snapshots the handlers for name so they run without the lock held;
// handlers may subscribe further handlers.
func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[name]...)

	if resource, _, ok := strings.Cut(name, "."); ok && resource != "" {
		matched = append(matched, b.handlers[resource+".*"]...)
	}

	if name != "*" {
		matched = append(matched, b.handlers["*"]...)
	}
	return matched
}
