package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/artpar/pocket/adapters/idgen"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/ports"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Options configures a Documents adapter.
type Options struct {
	// Path is the database file, or ":memory:".
	Path string

	// IDs generates record identifiers. Defaults to time-ordered UUIDs.
	IDs ports.IDGenerator

	// Logger receives index and lifecycle messages.
	Logger zerolog.Logger

	// ReadyTimeout bounds Ready. Defaults to storage.DefaultReadyTimeout.
	ReadyTimeout time.Duration
}

// Documents implements storage.Adapter on SQLite.
type Documents struct {
	db *DB // set under mu before the gate opens

	gate         *storage.Gate
	readyTimeout time.Duration
	ids          ports.IDGenerator
	logger       zerolog.Logger

	mu     sync.Mutex
	tables map[string]bool
	closed bool
}

var errClosed = errors.New("sqlite adapter closed")

// NewDocuments returns an adapter and starts opening the database in the
// background. Calls fail with storage.ErrNotReady until it is open.
func NewDocuments(opts Options) *Documents {
	if opts.IDs == nil {
		opts.IDs = idgen.Ordered{}
	}

	d := &Documents{
		gate:         storage.NewGate(),
		readyTimeout: opts.ReadyTimeout,
		ids:          opts.IDs,
		logger:       opts.Logger,
		tables:       make(map[string]bool),
	}

	go func() {
		db, err := Open(opts.Path)
		if err == nil {
			err = db.Ping()
			if err != nil {
				db.Close()
			}
		}
		if err != nil {
			d.logger.Error().Err(err).Str("path", opts.Path).Msg("sqlite open failed")
			d.gate.Open(err)
			return
		}
		if !d.adopt(db) {
			d.logger.Debug().Str("path", opts.Path).Msg("sqlite opened after close, discarded")
			return
		}
		d.logger.Debug().Str("path", opts.Path).Msg("sqlite ready")
		d.gate.Open(nil)
	}()

	return d
}

// Ready waits until the database is open.
func (d *Documents) Ready(ctx context.Context) error {
	return d.gate.Wait(ctx, d.readyTimeout)
}

// Find returns matching records.
func (d *Documents) Find(ctx context.Context, coll string, q storage.Query, opts storage.FindOptions) ([]storage.Record, error) {
	if err := d.prepare(ctx, coll); err != nil {
		return nil, storage.Wrap("find", coll, err)
	}

	matched, err := d.match(ctx, d.db, coll, q, true)
	if err != nil {
		return nil, storage.Wrap("find", coll, err)
	}
	return storage.Page(matched, opts), nil
}

// Insert stores a new record.
func (d *Documents) Insert(ctx context.Context, coll string, payload storage.Record) (storage.Record, error) {
	if err := d.prepare(ctx, coll); err != nil {
		return nil, storage.Wrap("insert", coll, err)
	}

	rec, err := storage.NewRecord(payload, d.ids.New())
	if err != nil {
		return nil, storage.Wrap("insert", coll, err)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, storage.Wrap("insert", coll, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?)", quoteIdent(coll))
	if _, err := d.db.ExecContext(ctx, query, rec[storage.IDField], string(doc)); err != nil {
		return nil, storage.Wrap("insert", coll, translate(err))
	}
	return rec, nil
}

// Update applies a mutation to matching records inside one transaction.
func (d *Documents) Update(ctx context.Context, coll string, q storage.Query, m storage.Mutation, opts storage.UpdateOptions) ([]storage.Record, error) {
	if err := d.prepare(ctx, coll); err != nil {
		return nil, storage.Wrap("update", coll, err)
	}

	var out []storage.Record
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		matched, err := d.match(ctx, tx, coll, q, opts.Multi)
		if err != nil {
			return err
		}

		ids := make([]any, 0, len(matched))
		update := fmt.Sprintf("UPDATE %s SET doc = ? WHERE id = ?", quoteIdent(coll))
		for _, rec := range matched {
			next, err := storage.Apply(rec, m)
			if err != nil {
				return err
			}
			doc, err := json.Marshal(next)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, update, string(doc), next[storage.IDField]); err != nil {
				return translate(err)
			}
			ids = append(ids, next[storage.IDField])
		}

		// Re-read by the resolved id set, not by the original filter.
		out, err = selectByIDs(ctx, tx, coll, ids)
		return err
	})
	if err != nil {
		return nil, storage.Wrap("update", coll, err)
	}
	return out, nil
}

// Remove deletes matching records inside one transaction.
func (d *Documents) Remove(ctx context.Context, coll string, q storage.Query, opts storage.RemoveOptions) (int, error) {
	if err := d.prepare(ctx, coll); err != nil {
		return 0, storage.Wrap("remove", coll, err)
	}

	var removed int
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		matched, err := d.match(ctx, tx, coll, q, opts.Multi)
		if err != nil {
			return err
		}

		del := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(coll))
		for _, rec := range matched {
			res, err := tx.ExecContext(ctx, del, rec[storage.IDField])
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, storage.Wrap("remove", coll, err)
	}
	return removed, nil
}

// DeclareUniqueIndex creates a unique expression index on a document
// field. Failures are logged.
func (d *Documents) DeclareUniqueIndex(ctx context.Context, coll, field string) {
	log := d.logger.With().Str("collection", coll).Str("field", field).Logger()

	if err := d.prepare(ctx, coll); err != nil {
		log.Error().Err(err).Msg("unique index not declared")
		return
	}
	if !validField(field) {
		log.Error().Msg("unique index not declared: unsupported field name")
		return
	}

	stmt := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (json_extract(doc, '$.%s'))`,
		quoteIdent("ux_"+coll+"_"+field), quoteIdent(coll), field)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		log.Error().Err(err).Msg("unique index not declared")
		return
	}
	log.Debug().Msg("unique index declared")
}

// adopt installs a freshly opened database. It reports false, closing db,
// when the adapter was closed while the database was opening.
func (d *Documents) adopt(db *DB) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		db.Close()
		return false
	}
	d.db = db
	return true
}

// Close closes the database. A database still opening is closed as soon
// as it opens. Later calls fail with storage.ErrNotReady.
func (d *Documents) Close() error {
	d.mu.Lock()
	d.closed = true
	db := d.db
	d.mu.Unlock()

	d.gate.Open(errClosed)
	if db == nil {
		return nil
	}
	return db.Close()
}

// prepare checks readiness and creates the collection table on first use.
func (d *Documents) prepare(ctx context.Context, coll string) error {
	if err := d.gate.Check(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &storage.NotReadyError{Cause: errClosed}
	}
	if d.tables[coll] {
		return nil
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id  TEXT NOT NULL UNIQUE,
		doc TEXT NOT NULL
	)`, quoteIdent(coll))
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	d.tables[coll] = true
	return nil
}

func (d *Documents) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// match scans the collection in insertion order. Without all, it stops at
// the first match. Identifier lookups use the id index.
func (d *Documents) match(ctx context.Context, q querier, coll string, query storage.Query, all bool) ([]storage.Record, error) {
	if id, ok := storage.IDOnly(query); ok {
		return selectByIDs(ctx, q, coll, []any{id})
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT doc FROM %s ORDER BY seq", quoteIdent(coll)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		rec, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		ok, err := storage.Match(rec, query)
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
	return out, rows.Err()
}

func selectByIDs(ctx context.Context, q querier, coll string, ids []any) ([]storage.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id IN (%s) ORDER BY seq", quoteIdent(coll), placeholders),
		ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		rec, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanDoc(rows *sql.Rows) (storage.Record, error) {
	var doc string
	if err := rows.Scan(&doc); err != nil {
		return nil, err
	}
	var rec storage.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return rec, nil
}

// translate maps unique constraint failures to storage.ErrDuplicate.
func translate(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}

// validField accepts names that are safe inside a JSON path literal.
func validField(field string) bool {
	if field == "" {
		return false
	}
	for i, c := range field {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Ensure interface compliance.
var _ storage.Adapter = (*Documents)(nil)
