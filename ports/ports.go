// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Security Ports
// -----------------------------------------------------------------------------

// Hasher hashes passwords.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// Rehasher is implemented by hashers that can tell a stored hash was made
// with other parameters and should be replaced.
type Rehasher interface {
	NeedsRehash(hash []byte) bool
}

// Token errors returned by TokenCodec.Verify.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenClaims is the session payload carried by a token.
type TokenClaims struct {
	Subject     string
	Username    string
	Groups      []string
	Permissions map[string][]string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenCodec issues and verifies signed session tokens.
type TokenCodec interface {
	// Issue signs claims. IssuedAt and ExpiresAt are set by the codec.
	Issue(claims TokenClaims) (token string, expiresAt time.Time, err error)

	// Verify checks the signature and expiry. Expired tokens fail with an
	// error matching ErrTokenExpired; anything else matches ErrTokenInvalid.
	Verify(token string) (TokenClaims, error)
}

// -----------------------------------------------------------------------------
// File Ports
// -----------------------------------------------------------------------------

// File store errors.
var (
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFileName = errors.New("invalid file name")
)

// FileInfo describes a stored file.
type FileInfo struct {
	Name      string    `json:"file"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileStore persists uploaded files.
type FileStore interface {
	// Store saves the content under a unique name derived from name.
	Store(ctx context.Context, name string, content io.Reader) (FileInfo, error)

	// Retrieve opens a stored file. The caller closes the reader.
	Retrieve(ctx context.Context, name string) (io.ReadCloser, FileInfo, error)

	// Delete removes a stored file.
	Delete(ctx context.Context, name string) error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Operation outcomes reported to an Observer.
const (
	OutcomeOK      = "ok"
	OutcomeDenied  = "denied"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Observer records resource operations.
type Observer interface {
	ObserveOperation(resource, operation, outcome string, duration time.Duration)
}

// NopObserver discards observations.
type NopObserver struct{}

// ObserveOperation does nothing.
func (NopObserver) ObserveOperation(string, string, string, time.Duration) {}
