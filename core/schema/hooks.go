package schema

import "context"

// Hook intercepts a resource operation. It may modify data in place or
// return an error to abort the operation; the error reaches the caller
// unchanged.
type Hook func(ctx context.Context, data *HookData, hc *HookContext) error

// HookData is the mutable state of an operation as seen by hooks.
type HookData struct {
	// Query selects the records of a read, update or remove.
	Query map[string]any

	// Payload is the record (create) or partial record (merge) to write.
	Payload map[string]any

	// Mutation is the update document of a multi-record update.
	Mutation map[string]any

	// Records holds the operation result (after hooks only).
	Records []map[string]any

	// Count is the number of removed records (after remove only).
	Count int
}

// HookContext describes the operation a hook runs for.
type HookContext struct {
	// Resource is the name of the resource.
	Resource string

	// Operation is the orchestrator operation (find, get, create, merge...).
	Operation string

	// Member is the caller; nil for anonymous callers.
	Member Member

	// Meta carries values between hooks of the same operation.
	Meta map[string]any
}

type hookTable struct {
	before map[string][]Hook
	after  map[string][]Hook
}

// Before registers a hook to run before method.
func (s *Schema) Before(method string, hook Hook) *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks.before[method] = append(s.hooks.before[method], hook)
	return s
}

// After registers a hook to run after method.
func (s *Schema) After(method string, hook Hook) *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks.after[method] = append(s.hooks.after[method], hook)
	return s
}

// ClearHooks removes every registered hook.
func (s *Schema) ClearHooks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = hookTable{
		before: make(map[string][]Hook),
		after:  make(map[string][]Hook),
	}
}

// HookRun fires hooks for one operation. Build it with RunHooks.
type HookRun struct {
	schema *Schema
	data   *HookData
	hc     *HookContext
}

// RunHooks binds data and context so the same hook set can be fired at
// several points of an operation.
func (s *Schema) RunHooks(data *HookData, hc *HookContext) HookRun {
	return HookRun{schema: s, data: data, hc: hc}
}

// Before runs the before hooks of each method in argument order, then in
// registration order. The first error stops the run.
func (r HookRun) Before(ctx context.Context, methods ...string) error {
	return r.run(ctx, true, methods)
}

// After runs the after hooks of each method, like Before.
func (r HookRun) After(ctx context.Context, methods ...string) error {
	return r.run(ctx, false, methods)
}

func (r HookRun) run(ctx context.Context, before bool, methods []string) error {
	for _, method := range methods {
		for _, hook := range r.schema.hooksFor(before, method) {
			if err := hook(ctx, r.data, r.hc); err != nil {
				return err
			}
		}
	}
	return nil
}

// hooksFor snapshots the hook list so hooks run without holding the lock.
func (s *Schema) hooksFor(before bool, method string) []Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := s.hooks.after
	if before {
		table = s.hooks.before
	}
	hooks := table[method]
	if len(hooks) == 0 {
		return nil
	}
	return append([]Hook(nil), hooks...)
}
