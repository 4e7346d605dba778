package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/pocket/adapters/sqlite"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/core/storage/storagetest"
	"github.com/rs/zerolog"
)

func setupTestDB(t *testing.T) *sqlite.Documents {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pocket-test.db")
	return sqlite.NewDocuments(sqlite.Options{Path: path, Logger: zerolog.Nop()})
}

func TestConformance_File(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return setupTestDB(t)
	})
}

func TestConformance_Memory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return sqlite.NewDocuments(sqlite.Options{Path: ":memory:", Logger: zerolog.Nop()})
	})
}

func TestDocuments_OpenFailure(t *testing.T) {
	d := sqlite.NewDocuments(sqlite.Options{
		Path:         filepath.Join(t.TempDir(), "missing", "dir", "x.db"),
		Logger:       zerolog.Nop(),
		ReadyTimeout: 5 * time.Second,
	})
	defer d.Close()

	err := d.Ready(context.Background())
	if !errors.Is(err, storage.ErrNotReady) {
		t.Fatalf("Ready() = %v, want ErrNotReady", err)
	}
	var nre *storage.NotReadyError
	if !errors.As(err, &nre) || nre.Cause == nil {
		t.Errorf("Ready() should carry the open failure, got %v", err)
	}

	if _, err := d.Insert(context.Background(), "posts", storage.Record{"a": 1}); !errors.Is(err, storage.ErrNotReady) {
		t.Errorf("Insert() = %v, want ErrNotReady", err)
	}
}

func TestDocuments_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	first := sqlite.NewDocuments(sqlite.Options{Path: path, Logger: zerolog.Nop()})
	if err := first.Ready(ctx); err != nil {
		t.Fatalf("Ready() = %v", err)
	}
	rec, err := first.Insert(ctx, "_users", storage.Record{"username": "ada", "groups": []string{"users"}})
	if err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	first.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	second := sqlite.NewDocuments(sqlite.Options{Path: path, Logger: zerolog.Nop()})
	defer second.Close()
	if err := second.Ready(ctx); err != nil {
		t.Fatalf("Ready() = %v", err)
	}

	got, err := second.Find(ctx, "_users", storage.Query{"groups": "users"}, storage.FindOptions{})
	if err != nil {
		t.Fatalf("Find() = %v", err)
	}
	if len(got) != 1 || got[0][storage.IDField] != rec[storage.IDField] {
		t.Errorf("Find() after reopen = %v", got)
	}
}

func TestDocuments_UniqueIndexOnDirtyData(t *testing.T) {
	d := setupTestDB(t)
	defer d.Close()
	ctx := context.Background()
	if err := d.Ready(ctx); err != nil {
		t.Fatalf("Ready() = %v", err)
	}

	d.Insert(ctx, "tags", storage.Record{"name": "go"})
	d.Insert(ctx, "tags", storage.Record{"name": "go"})

	// Index creation fails and is only logged; writes keep working.
	d.DeclareUniqueIndex(ctx, "tags", "name")
	if _, err := d.Insert(ctx, "tags", storage.Record{"name": "go"}); err != nil {
		t.Errorf("Insert() = %v, want success without index", err)
	}

	// Unsafe field names are refused.
	d.DeclareUniqueIndex(ctx, "tags", "name') --")
}
