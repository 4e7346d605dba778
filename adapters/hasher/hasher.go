// Package hasher provides password hashing implementations.
package hasher

import (
	"github.com/artpar/pocket/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost.
// Out-of-range costs fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash from plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare checks if plaintext matches hash in constant time.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// NeedsRehash reports whether hash was made with a different cost or is
// not a bcrypt hash at all.
func (h *Bcrypt) NeedsRehash(hash []byte) bool {
	cost, err := bcrypt.Cost(hash)
	return err != nil || cost != h.cost
}

// Ensure interface compliance.
var (
	_ ports.Hasher   = (*Bcrypt)(nil)
	_ ports.Rehasher = (*Bcrypt)(nil)
)

// Fake provides a no-op hasher for testing (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns the plaintext prefixed with a marker (no actual hashing).
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte("fake$" + plaintext), nil
}

// Compare does simple equality check.
func (Fake) Compare(hash []byte, plaintext string) bool {
	return string(hash) == "fake$"+plaintext
}

// Ensure interface compliance.
var _ ports.Hasher = Fake{}
