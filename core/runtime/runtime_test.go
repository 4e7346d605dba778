package runtime_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/pocket/adapters/memory"
	"github.com/artpar/pocket/core/events"
	"github.com/artpar/pocket/core/runtime"
	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/storage"
	"github.com/rs/zerolog"
)

// countingAdapter records which adapter methods were reached.
type countingAdapter struct {
	storage.Adapter

	mu    sync.Mutex
	calls []string
}

func (c *countingAdapter) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *countingAdapter) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *countingAdapter) Find(ctx context.Context, coll string, q storage.Query, opts storage.FindOptions) ([]storage.Record, error) {
	c.record("find")
	return c.Adapter.Find(ctx, coll, q, opts)
}

func (c *countingAdapter) Insert(ctx context.Context, coll string, payload storage.Record) (storage.Record, error) {
	c.record("insert")
	return c.Adapter.Insert(ctx, coll, payload)
}

func (c *countingAdapter) Update(ctx context.Context, coll string, q storage.Query, m storage.Mutation, opts storage.UpdateOptions) ([]storage.Record, error) {
	c.record("update")
	return c.Adapter.Update(ctx, coll, q, m, opts)
}

func (c *countingAdapter) Remove(ctx context.Context, coll string, q storage.Query, opts storage.RemoveOptions) (int, error) {
	c.record("remove")
	return c.Adapter.Remove(ctx, coll, q, opts)
}

type observation struct {
	resource, op, outcome string
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) ObserveOperation(resource, op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{resource, op, outcome})
}

type member []string

func (m member) MemberOf() []string { return m }

// grantee carries a per-resource grant outside the permission table.
type grantee struct {
	member
	resource string
	action   schema.Action
}

func (g grantee) IsAllowed(action schema.Action, resource string) bool {
	return action == g.action && resource == g.resource
}

func postSchema() *schema.Schema {
	return schema.MustNew(schema.Fields{
		{Name: "title", Field: schema.Of(schema.FieldTypeString).AsRequired()},
		{Name: "slug", Field: schema.Of(schema.FieldTypeString).WithIndex(true)},
		{Name: "views", Field: schema.Of(schema.FieldTypeNumber)},
		{Name: "tags", Field: schema.ArrayOf(schema.Of(schema.FieldTypeString))},
	}).
		Allow(schema.WildcardGroup, "read").
		Allow("editors", "create", "update", "delete")
}

type fixture struct {
	rt       *runtime.Runtime
	posts    *runtime.Resource
	adapter  *countingAdapter
	observer *recordingObserver
	bus      *events.Bus
}

func setup(t *testing.T) fixture {
	t.Helper()

	adapter := &countingAdapter{Adapter: memory.New(memory.Options{})}
	observer := &recordingObserver{}
	bus := events.NewBus(zerolog.Nop())

	rt := runtime.New(adapter, runtime.Config{
		Logger:   zerolog.Nop(),
		Observer: observer,
		Events:   bus,
	})
	posts, err := rt.Resource("posts", postSchema())
	if err != nil {
		t.Fatalf("Resource() = %v", err)
	}
	return fixture{rt: rt, posts: posts, adapter: adapter, observer: observer, bus: bus}
}

var editor = member{"editors"}

func TestCreateAndGet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, err := f.posts.Create(ctx, editor, storage.Record{"title": "Hello", "views": 1})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	id, ok := rec[storage.IDField].(string)
	if !ok || id == "" {
		t.Fatalf("Create() returned no id: %v", rec)
	}

	got, err := f.posts.Get(ctx, nil, id)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got["title"] != "Hello" || got["views"] != float64(1) {
		t.Errorf("Get() = %v", got)
	}

	missing, err := f.posts.Get(ctx, nil, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestPermissionDeniedNeverReachesAdapter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	hookRan := false
	f.posts.Schema().Before(runtime.MethodCreate, func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
		hookRan = true
		return nil
	})

	tests := []struct {
		name string
		call func() error
	}{
		{"create", func() error {
			_, err := f.posts.Create(ctx, member{"users"}, storage.Record{"title": "x"})
			return err
		}},
		{"merge", func() error {
			_, err := f.posts.Merge(ctx, nil, "id", storage.Record{"title": "x"})
			return err
		}},
		{"update", func() error {
			_, err := f.posts.Update(ctx, member{"users"}, storage.Query{}, storage.Mutation{"views": 2}, storage.UpdateOptions{Multi: true})
			return err
		}},
		{"remove", func() error {
			_, err := f.posts.Remove(ctx, nil, storage.Query{}, storage.RemoveOptions{})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var pde *runtime.PermissionDeniedError
			if !errors.As(err, &pde) {
				t.Fatalf("error = %v, want *PermissionDeniedError", err)
			}
			if pde.Resource != "posts" {
				t.Errorf("Resource = %q", pde.Resource)
			}
			if !errors.Is(err, runtime.ErrPermissionDenied) {
				t.Error("error should match ErrPermissionDenied")
			}
		})
	}

	if calls := f.adapter.Calls(); len(calls) != 0 {
		t.Errorf("adapter reached: %v", calls)
	}
	if hookRan {
		t.Error("hooks must not run for denied operations")
	}
}

func TestValidationFailsBeforeAdapter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.posts.Create(ctx, editor, storage.Record{"views": "many", "extra": true})
	var ve *runtime.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Create() = %v, want *ValidationError", err)
	}
	want := map[string]bool{
		"title is required":            true,
		"views must be of type number": true,
		"extra is not allowed":         true,
	}
	if len(ve.Errors) != len(want) {
		t.Errorf("Errors = %v", ve.Errors)
	}
	for _, msg := range ve.Errors {
		if !want[msg] {
			t.Errorf("unexpected message %q", msg)
		}
	}

	if calls := f.adapter.Calls(); len(calls) != 0 {
		t.Errorf("adapter reached: %v", calls)
	}
}

func TestMergeIgnoresRequired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, _ := f.posts.Create(ctx, editor, storage.Record{"title": "Hello", "views": 1})
	id := rec[storage.IDField].(string)

	got, err := f.posts.Merge(ctx, editor, id, storage.Record{"views": 2})
	if err != nil {
		t.Fatalf("Merge() = %v", err)
	}
	if got["views"] != float64(2) || got["title"] != "Hello" {
		t.Errorf("Merge() = %v", got)
	}

	if _, err := f.posts.Merge(ctx, editor, id, storage.Record{"views": "x"}); !errors.Is(err, runtime.ErrValidation) {
		t.Errorf("Merge(bad type) = %v, want ErrValidation", err)
	}
}

func TestMergeEmptyPayloadIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, _ := f.posts.Create(ctx, editor, storage.Record{"title": "Hello", "tags": []string{"go"}})
	id := rec[storage.IDField].(string)

	for i := 0; i < 2; i++ {
		got, err := f.posts.Merge(ctx, editor, id, storage.Record{})
		if err != nil {
			t.Fatalf("Merge({}) = %v", err)
		}
		if got["title"] != "Hello" || len(got) != len(rec) {
			t.Errorf("Merge({}) = %v, want %v", got, rec)
		}
	}
}

func TestMergeMissingReturnsNil(t *testing.T) {
	f := setup(t)

	got, err := f.posts.Merge(context.Background(), editor, "missing", storage.Record{"views": 1})
	if err != nil || got != nil {
		t.Errorf("Merge(missing) = %v, %v; want nil, nil", got, err)
	}
}

func TestUpdateMultiReturnsOriginalMatches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, v := range []int{1, 2, 3} {
		if _, err := f.posts.Create(ctx, editor, storage.Record{"title": "p", "views": v}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := f.posts.Update(ctx, editor,
		storage.Query{"views": map[string]any{"$lt": 3}},
		storage.Mutation{"$set": map[string]any{"views": 10}},
		storage.UpdateOptions{Multi: true})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Update() returned %d records, want 2", len(got))
	}
	for _, rec := range got {
		if rec["views"] != float64(10) {
			t.Errorf("record = %v, want views 10", rec)
		}
	}

	again, _ := f.posts.Find(ctx, nil, storage.Query{"views": map[string]any{"$lt": 3}}, storage.FindOptions{})
	if len(again) != 0 {
		t.Errorf("re-query = %v, want none", again)
	}
}

func TestUpdateValidatesAssignedFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.posts.Update(ctx, editor, storage.Query{},
		storage.Mutation{"$set": map[string]any{"views": "x"}, "$inc": map[string]any{"n": 1}},
		storage.UpdateOptions{})
	if !errors.Is(err, runtime.ErrValidation) {
		t.Errorf("Update() = %v, want ErrValidation", err)
	}
	if calls := f.adapter.Calls(); len(calls) != 0 {
		t.Errorf("adapter reached: %v", calls)
	}
}

func TestUpdateValidatesResultingRecord(t *testing.T) {
	tests := []struct {
		name     string
		mutation storage.Mutation
		want     error
	}{
		{"unset required", storage.Mutation{"$unset": map[string]any{"title": ""}}, runtime.ErrValidation},
		{"inc undeclared", storage.Mutation{"$inc": map[string]any{"undeclared": 1}}, runtime.ErrValidation},
		{"addToSet wrong item type", storage.Mutation{"$addToSet": map[string]any{"tags": 5}}, runtime.ErrValidation},
		{"push wrong item type", storage.Mutation{"$push": map[string]any{"tags": map[string]any{"$each": []any{"y", true}}}}, runtime.ErrValidation},
		{"set required to null", storage.Mutation{"$set": map[string]any{"title": nil}}, runtime.ErrValidation},
		{"inc string field", storage.Mutation{"$inc": map[string]any{"title": 1}}, storage.ErrInvalidMutation},
		{"unset optional", storage.Mutation{"$unset": map[string]any{"tags": ""}}, nil},
		{"inc declared number", storage.Mutation{"$inc": map[string]any{"views": 1}}, nil},
		{"addToSet string", storage.Mutation{"$addToSet": map[string]any{"tags": "y"}}, nil},
		{"pull", storage.Mutation{"$pull": map[string]any{"tags": "x"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()

			rec, err := f.posts.Create(ctx, editor, storage.Record{"title": "a", "views": 1, "tags": []string{"x"}})
			if err != nil {
				t.Fatal(err)
			}
			id := rec[storage.IDField].(string)

			_, err = f.posts.Update(ctx, editor, storage.Query{storage.IDField: id}, tt.mutation, storage.UpdateOptions{})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Update() = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Update() = %v, want %v", err, tt.want)
			}

			stored, _ := f.posts.Get(ctx, schema.System, id)
			if errs := f.posts.Schema().Validate(withoutID(stored), schema.ValidateOptions{}); len(errs) != 0 {
				t.Errorf("stored record became invalid: %v", errs)
			}
			for _, call := range f.adapter.Calls() {
				if call == "update" {
					t.Error("adapter update reached after a rejected mutation")
				}
			}
		})
	}
}

func TestUpdateMultiRejectsWithoutWriting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.posts.Create(ctx, editor, storage.Record{"title": "a", "views": 1})
	f.posts.Create(ctx, editor, storage.Record{"title": "b", "views": 1})
	_, err := f.posts.Update(ctx, editor, storage.Query{},
		storage.Mutation{"$unset": map[string]any{"title": ""}}, storage.UpdateOptions{Multi: true})
	if !errors.Is(err, runtime.ErrValidation) {
		t.Fatalf("Update(multi) = %v, want ErrValidation", err)
	}

	recs, _ := f.posts.Find(ctx, nil, storage.Query{}, storage.FindOptions{})
	for _, rec := range recs {
		if rec["title"] == nil {
			t.Errorf("record %v lost its title", rec)
		}
	}
}

func TestMergeCannotClearRequired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, _ := f.posts.Create(ctx, editor, storage.Record{"title": "Hello"})
	id := rec[storage.IDField].(string)

	if _, err := f.posts.Merge(ctx, editor, id, storage.Record{"title": nil}); !errors.Is(err, runtime.ErrValidation) {
		t.Errorf("Merge(title: nil) = %v, want ErrValidation", err)
	}
}

func withoutID(rec storage.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if k != storage.IDField {
			out[k] = v
		}
	}
	return out
}

func TestRemove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.posts.Create(ctx, editor, storage.Record{"title": "p", "views": 1})
	}

	n, err := f.posts.Remove(ctx, editor, storage.Query{"views": 1}, storage.RemoveOptions{})
	if err != nil || n != 1 {
		t.Fatalf("Remove(single) = %d, %v; want 1", n, err)
	}
	n, err = f.posts.Remove(ctx, editor, storage.Query{"views": 1}, storage.RemoveOptions{Multi: true})
	if err != nil || n != 2 {
		t.Fatalf("Remove(multi) = %d, %v; want 2", n, err)
	}
}

func TestHookPipeline(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var order []string
	f.posts.Schema().
		Before(runtime.MethodCreate, func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
			order = append(order, "h1")
			data.Payload["slug"] = "hello"
			hc.Meta["seen"] = true
			return nil
		}).
		Before(runtime.MethodCreate, func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
			order = append(order, "h2")
			if hc.Meta["seen"] != true {
				t.Error("meta should carry values between hooks")
			}
			if hc.Operation != "create" || hc.Resource != "posts" {
				t.Errorf("context = %+v", hc)
			}
			return nil
		}).
		After(runtime.MethodRead, func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
			for _, rec := range data.Records {
				delete(rec, "slug")
			}
			return nil
		})

	rec, err := f.posts.Create(ctx, editor, storage.Record{"title": "Hello"})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if len(order) != 2 || order[0] != "h1" || order[1] != "h2" {
		t.Errorf("order = %v", order)
	}
	if rec["slug"] != "hello" {
		t.Errorf("before hook change not stored: %v", rec)
	}

	got, _ := f.posts.Get(ctx, nil, rec[storage.IDField].(string))
	if _, ok := got["slug"]; ok {
		t.Errorf("after(read) hook should strip slug from Get: %v", got)
	}
	list, _ := f.posts.Find(ctx, nil, storage.Query{}, storage.FindOptions{})
	if _, ok := list[0]["slug"]; ok {
		t.Errorf("after(read) hook should strip slug from Find: %v", list[0])
	}
}

func TestHookErrorAborts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	errRejected := errors.New("rejected")
	f.posts.Schema().Before(runtime.MethodRemove, func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
		return errRejected
	})

	f.posts.Create(ctx, editor, storage.Record{"title": "keep"})
	if _, err := f.posts.Remove(ctx, editor, storage.Query{}, storage.RemoveOptions{Multi: true}); !errors.Is(err, errRejected) {
		t.Fatalf("Remove() = %v, want hook error", err)
	}

	for _, call := range f.adapter.Calls() {
		if call == "remove" {
			t.Error("adapter remove must not run after a hook error")
		}
	}
}

func TestListAndGetHookMethods(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var fired []string
	for _, method := range []string{runtime.MethodRead, runtime.MethodList, runtime.MethodGet} {
		f.posts.Schema().Before(method, func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
			fired = append(fired, method)
			return nil
		})
	}

	f.posts.Find(ctx, nil, storage.Query{}, storage.FindOptions{})
	f.posts.FindOne(ctx, nil, storage.Query{})

	want := []string{"read", "list", "read", "get"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
	}
}

func TestGranteeAndPrivileged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	g := grantee{member: member{"users"}, resource: "posts", action: schema.ActionCreate}
	if _, err := f.posts.Create(ctx, g, storage.Record{"title": "granted"}); err != nil {
		t.Errorf("Create() with explicit grant = %v", err)
	}
	if _, err := f.posts.Remove(ctx, g, storage.Query{}, storage.RemoveOptions{}); !errors.Is(err, runtime.ErrPermissionDenied) {
		t.Errorf("Remove() without grant = %v, want ErrPermissionDenied", err)
	}

	if n, err := f.posts.Remove(ctx, schema.System, storage.Query{}, storage.RemoveOptions{Multi: true}); err != nil || n != 1 {
		t.Errorf("Remove() as System = %d, %v", n, err)
	}
}

func TestStorageErrorsPropagate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.posts.Create(ctx, editor, storage.Record{"title": "a", "slug": "same"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.posts.Create(ctx, editor, storage.Record{"title": "b", "slug": "same"})

	var se *storage.StorageError
	if !errors.As(err, &se) || !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("Create(duplicate) = %v, want *StorageError wrapping ErrDuplicate", err)
	}
}

func TestEventsPublishedAfterWrites(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var mu sync.Mutex
	var names []string
	f.bus.Subscribe("posts.*", func(ctx context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, e.Name)
		return nil
	})

	rec, _ := f.posts.Create(ctx, editor, storage.Record{"title": "a"})
	f.posts.Merge(ctx, editor, rec[storage.IDField].(string), storage.Record{"views": 1})
	f.posts.Merge(ctx, editor, "missing", storage.Record{"views": 1})
	f.posts.Remove(ctx, editor, storage.Query{}, storage.RemoveOptions{})
	f.posts.Create(ctx, member{"users"}, storage.Record{"title": "denied"})

	want := []string{"posts.created", "posts.updated", "posts.removed"}
	mu.Lock()
	defer mu.Unlock()
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("events = %v, want %v", names, want)
		}
	}
}

func TestObserverOutcomes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.posts.Create(ctx, editor, storage.Record{"title": "a"})
	f.posts.Create(ctx, nil, storage.Record{"title": "a"})
	f.posts.Create(ctx, editor, storage.Record{})
	f.posts.Find(ctx, nil, storage.Query{"$bogus": 1}, storage.FindOptions{})

	want := []observation{
		{"posts", "create", "ok"},
		{"posts", "create", "denied"},
		{"posts", "create", "invalid"},
		{"posts", "find", "error"},
	}
	if len(f.observer.seen) != len(want) {
		t.Fatalf("observations = %v", f.observer.seen)
	}
	for i := range want {
		if f.observer.seen[i] != want[i] {
			t.Errorf("observation %d = %v, want %v", i, f.observer.seen[i], want[i])
		}
	}
}

func TestRuntimeRegistry(t *testing.T) {
	f := setup(t)

	if _, err := f.rt.Resource("posts", postSchema()); !errors.Is(err, runtime.ErrResourceExists) {
		t.Errorf("duplicate Resource() = %v, want ErrResourceExists", err)
	}
	if _, err := f.rt.Lookup("comments"); !errors.Is(err, runtime.ErrUnknownResource) {
		t.Errorf("Lookup(unknown) = %v, want ErrUnknownResource", err)
	}
	res, err := f.rt.Lookup("posts")
	if err != nil || res != f.posts {
		t.Errorf("Lookup(posts) = %v, %v", res, err)
	}
	if names := f.rt.Names(); len(names) != 1 || names[0] != "posts" {
		t.Errorf("Names() = %v", names)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	def := `
resource: notes
fields:
  body: { type: string, required: true }
  key:  { type: string, index: { unique: true } }
permissions:
  "*": [read, create]
hooks:
  before:
    create: [stamp]
`
	if err := os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}

	rt := runtime.New(memory.New(memory.Options{}), runtime.Config{Logger: zerolog.Nop()})

	if err := rt.LoadDir(dir); err == nil {
		t.Fatal("LoadDir() should fail while the stamp hook is unregistered")
	}

	rt.Functions().Register("stamp", func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
		data.Payload["key"] = "k-" + data.Payload["body"].(string)
		return nil
	})
	if err := rt.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir() = %v", err)
	}

	notes, err := rt.Lookup("notes")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rec, err := notes.Create(ctx, nil, storage.Record{"body": "x"})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if rec["key"] != "k-x" {
		t.Errorf("stamp hook not applied: %v", rec)
	}
	if _, err := notes.Create(ctx, nil, storage.Record{"body": "x"}); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("second Create() = %v, want ErrDuplicate from the declared unique index", err)
	}
}

func TestConcurrentOperations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.posts.Create(ctx, editor, storage.Record{"title": "c"})
		}()
		go func() {
			defer wg.Done()
			f.posts.Find(ctx, nil, storage.Query{}, storage.FindOptions{})
		}()
	}
	wg.Wait()

	all, err := f.posts.Find(ctx, nil, storage.Query{}, storage.FindOptions{})
	if err != nil || len(all) != 20 {
		t.Errorf("Find() = %d, %v", len(all), err)
	}
}
