package filestore_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/pocket/adapters/clock"
	"github.com/artpar/pocket/adapters/filestore"
	"github.com/artpar/pocket/adapters/idgen"
	"github.com/artpar/pocket/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest valid PNG header plus IHDR chunk start.
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newStore(t *testing.T) (*filestore.Local, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	store, err := filestore.NewLocal(filepath.Join(t.TempDir(), "uploads"),
		filestore.WithClock(clk), filestore.WithIDs(idgen.NewSequential("f")))
	require.NoError(t, err)
	return store, clk
}

func TestStoreAndRetrieve(t *testing.T) {
	store, clk := newStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		upload   string
		content  []byte
		wantName string
		wantMime string
	}{
		{"text", "notes.txt", []byte("hello pocket\n"), "f1-notes.txt", "text/plain; charset=utf-8"},
		{"png", "logo.png", pngBytes, "f2-logo.png", "image/png"},
		{"path stripped", "../../etc/passwd", []byte("x"), "f3-passwd", "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := store.Store(ctx, tt.upload, bytes.NewReader(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantMime, info.MimeType)
			assert.Equal(t, int64(len(tt.content)), info.Size)
			assert.Equal(t, clk.Now(), info.CreatedAt)

			_, err = os.Stat(filepath.Join(store.Dir(), info.Name))
			require.NoError(t, err)

			rc, got, err := store.Retrieve(ctx, info.Name)
			require.NoError(t, err)
			defer rc.Close()

			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tt.content, body)
			assert.Equal(t, tt.wantMime, got.MimeType)
			assert.Equal(t, info.Size, got.Size)
		})
	}
}

func TestStoreDoesNotOverwrite(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	a, err := store.Store(ctx, "same.txt", strings.NewReader("first"))
	require.NoError(t, err)
	b, err := store.Store(ctx, "same.txt", strings.NewReader("second"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Name, b.Name)

	rc, _, err := store.Retrieve(ctx, a.Name)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "first", string(body))
}

func TestStoreCancelled(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Store(ctx, "late.txt", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial upload should be removed")
}

func TestDelete(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	info, err := store.Store(ctx, "gone.txt", strings.NewReader("bye"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, info.Name))
	assert.ErrorIs(t, store.Delete(ctx, info.Name), ports.ErrFileNotFound)

	_, _, err = store.Retrieve(ctx, info.Name)
	assert.ErrorIs(t, err, ports.ErrFileNotFound)
}

func TestInvalidNames(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "..", "a/b", `..\x`} {
		_, _, err := store.Retrieve(ctx, name)
		assert.ErrorIs(t, err, ports.ErrInvalidFileName, "Retrieve(%q)", name)
		assert.ErrorIs(t, store.Delete(ctx, name), ports.ErrInvalidFileName, "Delete(%q)", name)
	}

	_, err := store.Store(ctx, "/", strings.NewReader("x"))
	assert.ErrorIs(t, err, ports.ErrInvalidFileName)
}

func TestNewLocalRequiresDir(t *testing.T) {
	_, err := filestore.NewLocal("")
	assert.Error(t, err)
}
