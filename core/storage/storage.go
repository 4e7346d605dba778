// Package storage defines the contract between resources and the backends
// that persist their records.
//
// Backends are document-oriented: a record is a JSON-like map keyed by
// field name with its identifier under IDField. Queries and mutations use a
// small operator language (see Match and Apply) that every adapter must
// honour with the same semantics.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// IDField is the record key holding the backend-assigned identifier.
const IDField = "_id"

// Record is one stored document.
type Record = map[string]any

// Query selects records. An empty query matches everything.
//
//	{"username": "ada"}
//	{"age": {"$gte": 18}, "groups": "admins"}
//	{"$or": [{"a": 1}, {"b": {"$exists": false}}]}
type Query = map[string]any

// Mutation describes changes to apply to matched records.
//
//	{"$set": {"title": "x"}, "$inc": {"views": 1}, "$addToSet": {"tags": "go"}}
//
// A mutation without operators is treated as $set.
type Mutation = map[string]any

// Adapter is a storage backend.
//
// Every operation fails with a *NotReadyError (matching ErrNotReady) until
// the backend has finished initializing. Calls are rejected, not queued.
type Adapter interface {
	// Ready blocks until the backend is ready or its readiness timeout
	// elapses. It never blocks indefinitely.
	Ready(ctx context.Context) error

	// Find returns the records matching q in insertion order.
	Find(ctx context.Context, collection string, q Query, opts FindOptions) ([]Record, error)

	// Insert stores payload under a fresh identifier and returns the stored
	// record.
	Insert(ctx context.Context, collection string, payload Record) (Record, error)

	// Update applies m to the records matching q.
	//
	// With Multi, the identifiers of the matches are resolved first, the
	// mutation is applied to exactly that set, and the post-update records
	// are re-read by identifier. Without Multi, only the first match is
	// updated atomically; the result holds zero or one record.
	Update(ctx context.Context, collection string, q Query, m Mutation, opts UpdateOptions) ([]Record, error)

	// Remove deletes the records matching q and returns how many were
	// deleted. Without Multi only the first match is deleted.
	Remove(ctx context.Context, collection string, q Query, opts RemoveOptions) (int, error)

	// DeclareUniqueIndex asks the backend to enforce uniqueness of field.
	// Failures are logged by the adapter, not returned.
	DeclareUniqueIndex(ctx context.Context, collection, field string)

	// Close releases backend resources.
	Close() error
}

// FindOptions pages and orders Find results.
type FindOptions struct {
	// Skip is the number of matching records to skip.
	Skip int

	// Limit caps the number of records returned. Zero means no limit.
	Limit int

	// Sort orders results by a field; prefix with "-" for descending.
	// Empty keeps insertion order.
	Sort string
}

// UpdateOptions configures Update.
type UpdateOptions struct {
	Multi bool
}

// RemoveOptions configures Remove.
type RemoveOptions struct {
	Multi bool
}

// Sentinel errors.
var (
	// ErrNotReady is matched by every *NotReadyError.
	ErrNotReady = errors.New("storage not ready")

	// ErrDuplicate reports a unique index violation.
	ErrDuplicate = errors.New("duplicate value for unique field")

	// ErrInvalidQuery reports a malformed query document.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidMutation reports a malformed mutation document.
	ErrInvalidMutation = errors.New("invalid mutation")
)

// NotReadyError is returned by adapter calls made before the backend is
// ready. Cause holds the initialization failure, if there was one.
type NotReadyError struct {
	Cause error
}

func (e *NotReadyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage not ready: %v", e.Cause)
	}
	return "storage not ready"
}

func (e *NotReadyError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrNotReady, e.Cause}
	}
	return []error{ErrNotReady}
}

// StorageError wraps a backend failure with the operation that caused it.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *StorageError unless it already is one or is a
// readiness failure.
func Wrap(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrNotReady) {
		return err
	}
	return &StorageError{Op: op, Collection: collection, Err: err}
}
