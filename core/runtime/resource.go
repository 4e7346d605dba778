package runtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/artpar/pocket/core/events"
	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/ports"
	"github.com/rs/zerolog"
)

// Hook methods fired by resource operations.
const (
	MethodRead   = "read"
	MethodList   = "list"
	MethodGet    = "get"
	MethodCreate = "create"
	MethodUpdate = "update"
	MethodRemove = "remove"
)

// Grantee is a member that may carry grants of its own, outside the
// resource's permission table.
type Grantee interface {
	IsAllowed(action schema.Action, resource string) bool
}

// Resource is one schema bound to one collection of the shared adapter.
//
// Every operation runs: permission check, before hooks, validation (writes
// only), adapter call, after hooks. Permission and validation failures
// never reach the adapter; adapter failures are returned as they are.
type Resource struct {
	name     string
	schema   *schema.Schema
	adapter  storage.Adapter
	events   *events.Bus
	observer ports.Observer
	logger   zerolog.Logger
}

// Name returns the resource (and collection) name.
func (r *Resource) Name() string {
	return r.name
}

// Schema returns the resource schema.
func (r *Resource) Schema() *schema.Schema {
	return r.schema
}

// IsAllowed reports whether m may perform action on the resource.
func (r *Resource) IsAllowed(m schema.Member, action schema.Action) bool {
	if r.schema.UserIsAllowed(m, action) {
		return true
	}
	if g, ok := m.(Grantee); ok {
		return g.IsAllowed(action, r.name)
	}
	return false
}

// Find returns the records matching q.
func (r *Resource) Find(ctx context.Context, m schema.Member, q storage.Query, opts storage.FindOptions) (out []storage.Record, err error) {
	defer r.observe("find", time.Now(), &err)

	data := &schema.HookData{Query: orEmpty(q)}
	run, err := r.begin(ctx, "find", m, schema.ActionRead, data, MethodRead, MethodList)
	if err != nil {
		return nil, err
	}

	data.Records, err = r.adapter.Find(ctx, r.name, data.Query, opts)
	if err != nil {
		return nil, err
	}
	if err := run.After(ctx, MethodRead, MethodList); err != nil {
		return nil, err
	}
	return data.Records, nil
}

// FindOne returns the first record matching q, or nil.
func (r *Resource) FindOne(ctx context.Context, m schema.Member, q storage.Query) (out storage.Record, err error) {
	defer r.observe("find_one", time.Now(), &err)
	return r.findOne(ctx, "find_one", m, orEmpty(q))
}

// Get returns the record with the given identifier, or nil.
func (r *Resource) Get(ctx context.Context, m schema.Member, id string) (out storage.Record, err error) {
	defer r.observe("get", time.Now(), &err)
	return r.findOne(ctx, "get", m, storage.Query{storage.IDField: id})
}

func (r *Resource) findOne(ctx context.Context, op string, m schema.Member, q storage.Query) (storage.Record, error) {
	data := &schema.HookData{Query: q}
	run, err := r.begin(ctx, op, m, schema.ActionRead, data, MethodRead, MethodGet)
	if err != nil {
		return nil, err
	}

	data.Records, err = r.adapter.Find(ctx, r.name, data.Query, storage.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if err := run.After(ctx, MethodRead, MethodGet); err != nil {
		return nil, err
	}
	return first(data.Records), nil
}

// Create validates and stores a new record.
func (r *Resource) Create(ctx context.Context, m schema.Member, payload storage.Record) (out storage.Record, err error) {
	defer r.observe("create", time.Now(), &err)

	data := &schema.HookData{Payload: copyMap(payload)}
	run, err := r.begin(ctx, "create", m, schema.ActionCreate, data, MethodCreate)
	if err != nil {
		return nil, err
	}
	if err := r.validate(data.Payload, false); err != nil {
		return nil, err
	}

	rec, err := r.adapter.Insert(ctx, r.name, data.Payload)
	if err != nil {
		return nil, err
	}
	data.Records = []storage.Record{rec}
	if err := run.After(ctx, MethodCreate); err != nil {
		return nil, err
	}

	r.publish(ctx, events.ActionCreated, data.Records, len(data.Records))
	return first(data.Records), nil
}

// Merge applies a partial update to the record with the given identifier
// and returns it, or nil if it does not exist. Required fields are not
// enforced; an empty payload leaves the record unchanged.
func (r *Resource) Merge(ctx context.Context, m schema.Member, id string, payload storage.Record) (out storage.Record, err error) {
	defer r.observe("merge", time.Now(), &err)

	data := &schema.HookData{
		Query:   storage.Query{storage.IDField: id},
		Payload: copyMap(payload),
	}
	run, err := r.begin(ctx, "merge", m, schema.ActionUpdate, data, MethodUpdate)
	if err != nil {
		return nil, err
	}
	if err := r.validate(data.Payload, true); err != nil {
		return nil, err
	}
	mutation := storage.Mutation{"$set": data.Payload}
	if err := r.checkMutation(ctx, data.Query, mutation, false); err != nil {
		return nil, err
	}

	data.Records, err = r.adapter.Update(ctx, r.name, data.Query, mutation, storage.UpdateOptions{})
	if err != nil {
		return nil, err
	}
	if err := run.After(ctx, MethodUpdate); err != nil {
		return nil, err
	}

	if len(data.Records) > 0 {
		r.publish(ctx, events.ActionUpdated, data.Records, len(data.Records))
	}
	return first(data.Records), nil
}

// Update applies a mutation to the records matching q. Assigned fields are
// checked first; then the mutation is applied to each current match and
// the resulting records must satisfy the schema.
func (r *Resource) Update(ctx context.Context, m schema.Member, q storage.Query, mutation storage.Mutation, opts storage.UpdateOptions) (out []storage.Record, err error) {
	defer r.observe("update", time.Now(), &err)

	data := &schema.HookData{Query: orEmpty(q), Mutation: copyMap(mutation)}
	run, err := r.begin(ctx, "update", m, schema.ActionUpdate, data, MethodUpdate)
	if err != nil {
		return nil, err
	}
	if err := r.validate(assignedFields(data.Mutation), true); err != nil {
		return nil, err
	}
	if err := r.checkMutation(ctx, data.Query, data.Mutation, opts.Multi); err != nil {
		return nil, err
	}

	data.Records, err = r.adapter.Update(ctx, r.name, data.Query, data.Mutation, opts)
	if err != nil {
		return nil, err
	}
	if err := run.After(ctx, MethodUpdate); err != nil {
		return nil, err
	}

	if len(data.Records) > 0 {
		r.publish(ctx, events.ActionUpdated, data.Records, len(data.Records))
	}
	return data.Records, nil
}

// Remove deletes the records matching q and returns how many were removed.
// Without Multi only the first match is removed.
func (r *Resource) Remove(ctx context.Context, m schema.Member, q storage.Query, opts storage.RemoveOptions) (n int, err error) {
	defer r.observe("remove", time.Now(), &err)

	data := &schema.HookData{Query: orEmpty(q)}
	run, err := r.begin(ctx, "remove", m, schema.ActionRemove, data, MethodRemove)
	if err != nil {
		return 0, err
	}

	data.Count, err = r.adapter.Remove(ctx, r.name, data.Query, opts)
	if err != nil {
		return 0, err
	}
	if err := run.After(ctx, MethodRemove); err != nil {
		return 0, err
	}

	if data.Count > 0 {
		r.publish(ctx, events.ActionRemoved, nil, data.Count)
	}
	return data.Count, nil
}

// begin checks the permission and runs the before hooks.
func (r *Resource) begin(ctx context.Context, op string, m schema.Member, action schema.Action, data *schema.HookData, methods ...string) (schema.HookRun, error) {
	if !r.IsAllowed(m, action) {
		return schema.HookRun{}, &PermissionDeniedError{Resource: r.name, Action: action}
	}

	run := r.schema.RunHooks(data, &schema.HookContext{
		Resource:  r.name,
		Operation: op,
		Member:    m,
		Meta:      make(map[string]any),
	})
	if err := run.Before(ctx, methods...); err != nil {
		return schema.HookRun{}, err
	}
	return run, nil
}

func (r *Resource) validate(payload map[string]any, partial bool) error {
	errs := r.schema.Validate(payload, schema.ValidateOptions{IgnoreRequired: partial})
	if len(errs) > 0 {
		return &ValidationError{Resource: r.name, Errors: errs}
	}
	return nil
}

// checkMutation applies m to the records q currently matches and validates
// each result as a whole record. Without multi only the first match is
// checked, as only it will be written.
func (r *Resource) checkMutation(ctx context.Context, q storage.Query, m storage.Mutation, multi bool) error {
	opts := storage.FindOptions{}
	if !multi {
		opts.Limit = 1
	}
	matches, err := r.adapter.Find(ctx, r.name, q, opts)
	if err != nil {
		return err
	}

	for _, rec := range matches {
		next, err := storage.Apply(rec, m)
		if err != nil {
			return err
		}
		delete(next, storage.IDField)
		if errs := r.schema.Validate(next, schema.ValidateOptions{}); len(errs) > 0 {
			return &ValidationError{Resource: r.name, Errors: errs}
		}
	}
	return nil
}

func (r *Resource) publish(ctx context.Context, action string, records []storage.Record, count int) {
	if r.events == nil {
		return
	}
	r.events.Publish(ctx, events.NewEvent(r.name, action, records, count))
}

func (r *Resource) observe(op string, start time.Time, errp *error) {
	elapsed := time.Since(start)
	outcome := Outcome(*errp)

	r.observer.ObserveOperation(r.name, op, outcome, elapsed)

	ev := r.logger.Debug()
	if outcome == ports.OutcomeError {
		ev = r.logger.Warn()
	}
	ev.Str("op", op).
		Str("outcome", outcome).
		Dur("duration", elapsed).
		Err(*errp).
		Msg("resource operation")
}

// Outcome classifies an operation error for observers.
func Outcome(err error) string {
	switch {
	case err == nil:
		return ports.OutcomeOK
	case errors.Is(err, ErrPermissionDenied):
		return ports.OutcomeDenied
	case errors.Is(err, ErrValidation):
		return ports.OutcomeInvalid
	default:
		return ports.OutcomeError
	}
}

// assignedFields returns the top-level fields a mutation sets. Nested
// paths are left to the storage layer.
func assignedFields(m storage.Mutation) map[string]any {
	set := m
	for k := range m {
		if strings.HasPrefix(k, "$") {
			set, _ = m["$set"].(map[string]any)
			break
		}
	}

	out := make(map[string]any, len(set))
	for k, v := range set {
		if !strings.Contains(k, ".") {
			out[k] = v
		}
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func orEmpty(q storage.Query) storage.Query {
	if q == nil {
		return storage.Query{}
	}
	return q
}

func first(records []storage.Record) storage.Record {
	if len(records) == 0 {
		return nil
	}
	return records[0]
}
