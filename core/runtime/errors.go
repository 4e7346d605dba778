package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/pocket/core/schema"
)

// Sentinel errors matched by the typed errors below.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
)

// PermissionDeniedError reports an action the caller is not granted.
type PermissionDeniedError struct {
	Resource string
	Action   schema.Action
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

func (e *PermissionDeniedError) Unwrap() error {
	return ErrPermissionDenied
}

// ValidationError wraps schema validation failures. Errors holds one
// message per offending field.
type ValidationError struct {
	Resource string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
