// Package filestore keeps uploaded files on the local filesystem.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/pocket/adapters/clock"
	"github.com/artpar/pocket/adapters/idgen"
	"github.com/artpar/pocket/ports"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// Local stores files in a single directory. Stored names are the upload
// name prefixed with a unique stamp, so uploads never overwrite each other.
type Local struct {
	dir    string
	ids    ports.IDGenerator
	clock  ports.Clock
	logger zerolog.Logger
}

// Option configures a Local store.
type Option func(*Local)

// WithClock sets the time source for CreatedAt.
func WithClock(c ports.Clock) Option {
	return func(l *Local) { l.clock = c }
}

// WithIDs sets the generator for name stamps.
func WithIDs(g ports.IDGenerator) Option {
	return func(l *Local) { l.ids = g }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Local) { l.logger = logger }
}

// NewLocal returns a store rooted at dir, creating it if needed.
func NewLocal(dir string, opts ...Option) (*Local, error) {
	if dir == "" {
		return nil, errors.New("filestore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	l := &Local{
		dir:    dir,
		ids:    idgen.UUID{},
		clock:  clock.Real{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Dir returns the upload folder.
func (l *Local) Dir() string {
	return l.dir
}

// Store copies content into a new file named "<stamp>-<base(name)>".
// A partially written file is removed when the copy fails.
func (l *Local) Store(ctx context.Context, name string, content io.Reader) (ports.FileInfo, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return ports.FileInfo{}, fmt.Errorf("%w: %q", ports.ErrInvalidFileName, name)
	}
	stamped := l.ids.New() + "-" + base
	path := filepath.Join(l.dir, stamped)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return ports.FileInfo{}, fmt.Errorf("create file: %w", err)
	}

	size, err := io.Copy(f, &ctxReader{ctx: ctx, r: content})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return ports.FileInfo{}, fmt.Errorf("write file: %w", err)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		os.Remove(path)
		return ports.FileInfo{}, fmt.Errorf("detect mime type: %w", err)
	}

	info := ports.FileInfo{
		Name:      stamped,
		MimeType:  mime.String(),
		Size:      size,
		CreatedAt: l.clock.Now(),
	}
	l.logger.Debug().Str("file", stamped).Str("mime", info.MimeType).Int64("size", size).Msg("file stored")
	return info, nil
}

// Retrieve opens a stored file. The caller closes the reader.
func (l *Local) Retrieve(ctx context.Context, name string) (io.ReadCloser, ports.FileInfo, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, ports.FileInfo{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ports.FileInfo{}, notFound(name, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ports.FileInfo{}, fmt.Errorf("stat file: %w", err)
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, ports.FileInfo{}, fmt.Errorf("detect mime type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, ports.FileInfo{}, fmt.Errorf("rewind file: %w", err)
	}

	return f, ports.FileInfo{
		Name:      name,
		MimeType:  mime.String(),
		Size:      st.Size(),
		CreatedAt: st.ModTime().UTC(),
	}, nil
}

// Delete removes a stored file.
func (l *Local) Delete(ctx context.Context, name string) error {
	path, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return notFound(name, err)
	}
	l.logger.Debug().Str("file", name).Msg("file deleted")
	return nil
}

func (l *Local) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ports.ErrInvalidFileName, name)
	}
	return filepath.Join(l.dir, name), nil
}

func notFound(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ports.ErrFileNotFound, name)
	}
	return err
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ ports.FileStore = (*Local)(nil)
