// Package memory provides an in-memory document storage adapter.
// Used by tests and for ephemeral deployments.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/artpar/pocket/adapters/idgen"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/ports"
	"github.com/rs/zerolog"
)

// Options configures a Store.
type Options struct {
	// IDs generates record identifiers. Defaults to UUID v4.
	IDs ports.IDGenerator

	// Logger receives index and lifecycle messages.
	Logger zerolog.Logger

	// Deferred leaves the store not ready until Open is called.
	Deferred bool

	// ReadyTimeout bounds Ready. Defaults to storage.DefaultReadyTimeout.
	ReadyTimeout time.Duration
}

// Store is an in-memory implementation of storage.Adapter.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection

	gate         *storage.Gate
	readyTimeout time.Duration
	ids          ports.IDGenerator
	logger       zerolog.Logger
}

type collection struct {
	order   []string // insertion order
	records map[string]storage.Record
	unique  []string
}

// New creates an in-memory store.
func New(opts Options) *Store {
	if opts.IDs == nil {
		opts.IDs = idgen.UUID{}
	}

	s := &Store{
		collections:  make(map[string]*collection),
		gate:         storage.NewGate(),
		readyTimeout: opts.ReadyTimeout,
		ids:          opts.IDs,
		logger:       opts.Logger,
	}
	if !opts.Deferred {
		s.gate.Open(nil)
	}
	return s
}

// Open marks a deferred store as ready, or failed when err is non-nil.
func (s *Store) Open(err error) {
	s.gate.Open(err)
}

// Ready waits until the store is ready.
func (s *Store) Ready(ctx context.Context) error {
	return s.gate.Wait(ctx, s.readyTimeout)
}

// Find returns matching records.
func (s *Store) Find(ctx context.Context, coll string, q storage.Query, opts storage.FindOptions) ([]storage.Record, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collections[coll]
	if c == nil {
		return nil, nil
	}

	matched, err := c.match(q, true)
	if err != nil {
		return nil, storage.Wrap("find", coll, err)
	}
	return storage.CloneAll(storage.Page(matched, opts)), nil
}

// Insert stores a new record.
func (s *Store) Insert(ctx context.Context, coll string, payload storage.Record) (storage.Record, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	rec, err := storage.NewRecord(payload, s.ids.New())
	if err != nil {
		return nil, storage.Wrap("insert", coll, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(coll)
	id := rec[storage.IDField].(string)
	if _, exists := c.records[id]; exists {
		return nil, storage.Wrap("insert", coll, fmt.Errorf("%w: %s %s", storage.ErrDuplicate, storage.IDField, id))
	}
	if err := c.checkUnique(rec, ""); err != nil {
		return nil, storage.Wrap("insert", coll, err)
	}

	c.records[id] = rec
	c.order = append(c.order, id)
	return storage.Clone(rec), nil
}

// Update applies a mutation to matching records.
// The write lock is held for the whole call, so resolving ids and
// applying the mutation happen atomically.
func (s *Store) Update(ctx context.Context, coll string, q storage.Query, m storage.Mutation, opts storage.UpdateOptions) ([]storage.Record, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[coll]
	if c == nil {
		return nil, nil
	}

	matched, err := c.match(q, opts.Multi)
	if err != nil {
		return nil, storage.Wrap("update", coll, err)
	}

	// Compute every new version first so a failure leaves nothing applied.
	updated := make([]storage.Record, 0, len(matched))
	for _, rec := range matched {
		next, err := storage.Apply(rec, m)
		if err != nil {
			return nil, storage.Wrap("update", coll, err)
		}
		updated = append(updated, next)
	}
	for _, next := range updated {
		if err := c.checkUnique(next, next[storage.IDField].(string)); err != nil {
			return nil, storage.Wrap("update", coll, err)
		}
	}
	if err := checkBatchUnique(c.unique, updated); err != nil {
		return nil, storage.Wrap("update", coll, err)
	}

	for _, next := range updated {
		c.records[next[storage.IDField].(string)] = next
	}
	return storage.CloneAll(updated), nil
}

// Remove deletes matching records.
func (s *Store) Remove(ctx context.Context, coll string, q storage.Query, opts storage.RemoveOptions) (int, error) {
	if err := s.gate.Check(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[coll]
	if c == nil {
		return 0, nil
	}

	matched, err := c.match(q, opts.Multi)
	if err != nil {
		return 0, storage.Wrap("remove", coll, err)
	}

	gone := make(map[string]bool, len(matched))
	for _, rec := range matched {
		id := rec[storage.IDField].(string)
		gone[id] = true
		delete(c.records, id)
	}
	c.order = slices.DeleteFunc(c.order, func(id string) bool { return gone[id] })
	return len(matched), nil
}

// DeclareUniqueIndex enforces uniqueness of field for later writes.
// Existing duplicates are logged and left in place.
func (s *Store) DeclareUniqueIndex(ctx context.Context, coll, field string) {
	if err := s.gate.Check(); err != nil {
		s.logger.Error().Err(err).Str("collection", coll).Str("field", field).Msg("unique index not declared")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(coll)
	if slices.Contains(c.unique, field) {
		return
	}
	c.unique = append(c.unique, field)

	var all []storage.Record
	for _, id := range c.order {
		all = append(all, c.records[id])
	}
	if err := checkBatchUnique([]string{field}, all); err != nil {
		s.logger.Warn().Err(err).Str("collection", coll).Str("field", field).Msg("existing records violate unique index")
	}
}

// Close is a no-op; data is discarded with the store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) collection(name string) *collection {
	c := s.collections[name]
	if c == nil {
		c = &collection{records: make(map[string]storage.Record)}
		s.collections[name] = c
	}
	return c
}

// match returns records matching q in insertion order. Without all, at
// most the first match is returned.
func (c *collection) match(q storage.Query, all bool) ([]storage.Record, error) {
	if id, ok := storage.IDOnly(q); ok {
		rec, exists := c.records[id]
		if !exists {
			return nil, nil
		}
		return []storage.Record{rec}, nil
	}

	var out []storage.Record
	for _, id := range c.order {
		rec := c.records[id]
		ok, err := storage.Match(rec, q)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, rec)
		if !all {
			break
		}
	}
	return out, nil
}

// checkUnique verifies rec against stored records other than skipID.
func (c *collection) checkUnique(rec storage.Record, skipID string) error {
	for _, field := range c.unique {
		val, ok := rec[field]
		if !ok || val == nil {
			continue
		}
		for id, other := range c.records {
			if id == skipID {
				continue
			}
			if reflect.DeepEqual(other[field], val) {
				return fmt.Errorf("%w: %s", storage.ErrDuplicate, field)
			}
		}
	}
	return nil
}

// checkBatchUnique verifies that records do not collide with each other.
func checkBatchUnique(fields []string, records []storage.Record) error {
	for _, field := range fields {
		for i := range records {
			a, ok := records[i][field]
			if !ok || a == nil {
				continue
			}
			for j := i + 1; j < len(records); j++ {
				if reflect.DeepEqual(a, records[j][field]) {
					return fmt.Errorf("%w: %s", storage.ErrDuplicate, field)
				}
			}
		}
	}
	return nil
}

// Ensure interface compliance.
var _ storage.Adapter = (*Store)(nil)
