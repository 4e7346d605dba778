// Package storagetest provides a conformance suite for storage adapters.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//		storagetest.Run(t, func(t *testing.T) storage.Adapter {
//			return memory.New(memory.Options{})
//		})
//	}
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/pocket/core/storage"
)

// Factory returns a ready-to-open adapter. The suite closes it.
type Factory func(t *testing.T) storage.Adapter

// Run exercises the adapter contract against adapters built by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, a storage.Adapter)
	}{
		{"InsertAndFind", testInsertAndFind},
		{"FindOptions", testFindOptions},
		{"ReturnsCopies", testReturnsCopies},
		{"UpdateSingle", testUpdateSingle},
		{"UpdateMultiUsesIDSet", testUpdateMultiUsesIDSet},
		{"UpdateNoMatch", testUpdateNoMatch},
		{"UpdateRejectsIDChange", testUpdateRejectsIDChange},
		{"RemoveSingle", testRemoveSingle},
		{"RemoveMulti", testRemoveMulti},
		{"UniqueIndex", testUniqueIndex},
		{"InvalidQuery", testInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t)
			t.Cleanup(func() { a.Close() })

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.Ready(ctx); err != nil {
				t.Fatalf("Ready() = %v", err)
			}
			tt.fn(t, a)
		})
	}
}

func insert(t *testing.T, a storage.Adapter, coll string, payload storage.Record) storage.Record {
	t.Helper()
	rec, err := a.Insert(context.Background(), coll, payload)
	if err != nil {
		t.Fatalf("Insert(%v) = %v", payload, err)
	}
	return rec
}

func find(t *testing.T, a storage.Adapter, coll string, q storage.Query) []storage.Record {
	t.Helper()
	recs, err := a.Find(context.Background(), coll, q, storage.FindOptions{})
	if err != nil {
		t.Fatalf("Find(%v) = %v", q, err)
	}
	return recs
}

func ids(recs []storage.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r[storage.IDField].(string)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

func testInsertAndFind(t *testing.T, a storage.Adapter) {
	rec := insert(t, a, "posts", storage.Record{"title": "hello", "views": 3, "tags": []string{"go"}})

	id, _ := rec[storage.IDField].(string)
	if id == "" {
		t.Fatalf("Insert() returned no %s: %v", storage.IDField, rec)
	}
	if rec["views"] != float64(3) {
		t.Errorf("views = %#v, want normalized float64(3)", rec["views"])
	}

	insert(t, a, "posts", storage.Record{"title": "other", "tags": []string{"rust"}})

	got := find(t, a, "posts", storage.Query{storage.IDField: id})
	if len(got) != 1 || got[0]["title"] != "hello" {
		t.Fatalf("Find by id = %v", got)
	}
	if got := find(t, a, "posts", storage.Query{"tags": "rust"}); len(got) != 1 || got[0]["title"] != "other" {
		t.Errorf("Find by array element = %v", got)
	}
	if got := find(t, a, "posts", storage.Query{}); len(got) != 2 {
		t.Errorf("Find all = %d records, want 2", len(got))
	}
	if got := find(t, a, "empty", storage.Query{}); len(got) != 0 {
		t.Errorf("Find on unknown collection = %v", got)
	}
}

func testFindOptions(t *testing.T, a storage.Adapter) {
	for _, n := range []int{3, 1, 2, 5, 4} {
		insert(t, a, "nums", storage.Record{"n": n})
	}

	recs, err := a.Find(context.Background(), "nums", storage.Query{"n": storage.Query{"$gt": 1}},
		storage.FindOptions{Sort: "-n", Skip: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Find() = %v", err)
	}
	if len(recs) != 2 || recs[0]["n"] != float64(4) || recs[1]["n"] != float64(3) {
		t.Errorf("Find() = %v, want n=4,3", recs)
	}

	recs, err = a.Find(context.Background(), "nums", storage.Query{}, storage.FindOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Find() = %v", err)
	}
	if len(recs) != 2 || recs[0]["n"] != float64(3) || recs[1]["n"] != float64(1) {
		t.Errorf("Find() = %v, want insertion order 3,1", recs)
	}
}

func testReturnsCopies(t *testing.T, a storage.Adapter) {
	rec := insert(t, a, "posts", storage.Record{"title": "hello", "tags": []any{"a"}})
	rec["title"] = "changed"

	got := find(t, a, "posts", storage.Query{})
	got[0]["tags"].([]any)[0] = "z"

	again := find(t, a, "posts", storage.Query{})
	if again[0]["title"] != "hello" || again[0]["tags"].([]any)[0] != "a" {
		t.Errorf("stored record changed through a returned copy: %v", again[0])
	}
}

func testUpdateSingle(t *testing.T, a storage.Adapter) {
	first := insert(t, a, "users", storage.Record{"group": "x", "n": 1})
	second := insert(t, a, "users", storage.Record{"group": "x", "n": 2})

	got, err := a.Update(context.Background(), "users", storage.Query{"group": "x"},
		storage.Mutation{"$inc": map[string]any{"n": 10}}, storage.UpdateOptions{})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if len(got) != 1 || got[0][storage.IDField] != first[storage.IDField] || got[0]["n"] != float64(11) {
		t.Fatalf("Update() = %v, want first record with n=11", got)
	}

	untouched := find(t, a, "users", storage.Query{storage.IDField: second[storage.IDField]})
	if untouched[0]["n"] != float64(2) {
		t.Errorf("second record changed: %v", untouched[0])
	}
}

func testUpdateMultiUsesIDSet(t *testing.T, a storage.Adapter) {
	var want []string
	for i := 0; i < 3; i++ {
		rec := insert(t, a, "tasks", storage.Record{"status": "open", "i": i})
		want = append(want, rec[storage.IDField].(string))
	}
	insert(t, a, "tasks", storage.Record{"status": "done"})

	// The mutation moves every match out of the filter; the result must
	// still be the updated set.
	got, err := a.Update(context.Background(), "tasks", storage.Query{"status": "open"},
		storage.Mutation{"$set": map[string]any{"status": "closed"}}, storage.UpdateOptions{Multi: true})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if !sameIDs(ids(got), want) {
		t.Fatalf("Update() ids = %v, want %v", ids(got), want)
	}
	for _, r := range got {
		if r["status"] != "closed" {
			t.Errorf("record %v not updated", r)
		}
	}

	if left := find(t, a, "tasks", storage.Query{"status": "open"}); len(left) != 0 {
		t.Errorf("%d records still open", len(left))
	}
	if done := find(t, a, "tasks", storage.Query{"status": "done"}); len(done) != 1 {
		t.Errorf("non-matching record changed")
	}
}

func testUpdateNoMatch(t *testing.T, a storage.Adapter) {
	insert(t, a, "tasks", storage.Record{"status": "open"})

	for _, multi := range []bool{false, true} {
		got, err := a.Update(context.Background(), "tasks", storage.Query{"status": "missing"},
			storage.Mutation{"status": "x"}, storage.UpdateOptions{Multi: multi})
		if err != nil {
			t.Fatalf("Update(multi=%v) = %v", multi, err)
		}
		if len(got) != 0 {
			t.Errorf("Update(multi=%v) = %v, want nothing", multi, got)
		}
	}
}

func testUpdateRejectsIDChange(t *testing.T, a storage.Adapter) {
	rec := insert(t, a, "posts", storage.Record{"title": "x"})

	_, err := a.Update(context.Background(), "posts", storage.Query{storage.IDField: rec[storage.IDField]},
		storage.Mutation{"$set": map[string]any{storage.IDField: "other"}}, storage.UpdateOptions{})
	if !errors.Is(err, storage.ErrInvalidMutation) {
		t.Errorf("Update() = %v, want ErrInvalidMutation", err)
	}
}

func testRemoveSingle(t *testing.T, a storage.Adapter) {
	first := insert(t, a, "posts", storage.Record{"tag": "x"})
	insert(t, a, "posts", storage.Record{"tag": "x"})

	n, err := a.Remove(context.Background(), "posts", storage.Query{"tag": "x"}, storage.RemoveOptions{})
	if err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	if n != 1 {
		t.Errorf("Remove() = %d, want 1", n)
	}

	left := find(t, a, "posts", storage.Query{})
	if len(left) != 1 || left[0][storage.IDField] == first[storage.IDField] {
		t.Errorf("Remove() should delete the first match only, left %v", left)
	}
}

func testRemoveMulti(t *testing.T, a storage.Adapter) {
	insert(t, a, "posts", storage.Record{"tag": "x"})
	insert(t, a, "posts", storage.Record{"tag": "x"})
	insert(t, a, "posts", storage.Record{"tag": "y"})

	n, err := a.Remove(context.Background(), "posts", storage.Query{"tag": "x"}, storage.RemoveOptions{Multi: true})
	if err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	if n != 2 {
		t.Errorf("Remove() = %d, want 2", n)
	}

	n, err = a.Remove(context.Background(), "posts", storage.Query{"tag": "none"}, storage.RemoveOptions{Multi: true})
	if err != nil || n != 0 {
		t.Errorf("Remove() of nothing = %d, %v", n, err)
	}
}

func testUniqueIndex(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	a.DeclareUniqueIndex(ctx, "accounts", "username")
	a.DeclareUniqueIndex(ctx, "accounts", "username")

	insert(t, a, "accounts", storage.Record{"username": "ada"})
	other := insert(t, a, "accounts", storage.Record{"username": "bob"})

	_, err := a.Insert(ctx, "accounts", storage.Record{"username": "ada"})
	var se *storage.StorageError
	if !errors.Is(err, storage.ErrDuplicate) || !errors.As(err, &se) {
		t.Errorf("duplicate Insert() = %v, want StorageError wrapping ErrDuplicate", err)
	}

	_, err = a.Update(ctx, "accounts", storage.Query{storage.IDField: other[storage.IDField]},
		storage.Mutation{"username": "ada"}, storage.UpdateOptions{})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("duplicate Update() = %v, want ErrDuplicate", err)
	}

	got := find(t, a, "accounts", storage.Query{storage.IDField: other[storage.IDField]})
	if len(got) != 1 || got[0]["username"] != "bob" {
		t.Errorf("failed update changed the record: %v", got)
	}

	// Records without the field do not collide.
	insert(t, a, "accounts", storage.Record{"other": 1})
	insert(t, a, "accounts", storage.Record{"other": 2})
}

func testInvalidQuery(t *testing.T, a storage.Adapter) {
	insert(t, a, "posts", storage.Record{"title": "x"})

	_, err := a.Find(context.Background(), "posts", storage.Query{"title": storage.Query{"$regex": "x"}}, storage.FindOptions{})
	if !errors.Is(err, storage.ErrInvalidQuery) {
		t.Errorf("Find() = %v, want ErrInvalidQuery", err)
	}
}
