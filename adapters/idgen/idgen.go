// Package idgen provides record identifier generators.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/pocket/ports"
	"github.com/google/uuid"
)

// UUID generates random (v4) UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.NewString()
}

// Ordered generates time-ordered (v7) UUIDs. Identifiers sort in creation
// order, which keeps relational primary key indexes append-mostly.
type Ordered struct{}

// New generates a new UUID v7, falling back to v4 if the clock source fails.
func (Ordered) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Ensure interface compliance.
var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = Ordered{}
	_ ports.IDGenerator = (*Sequential)(nil)
)
