package storage

import (
	"context"
	"sync"
	"time"
)

// DefaultReadyTimeout bounds Ready when no timeout is configured.
const DefaultReadyTimeout = 10 * time.Second

// Gate tracks backend readiness. Adapters create one at construction,
// Open it once initialization finishes, and Check it on every call.
type Gate struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open marks initialization as finished. A non-nil err keeps the gate
// failing with that cause. Only the first call has an effect.
func (g *Gate) Open(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// Check reports readiness without blocking.
func (g *Gate) Check() error {
	select {
	case <-g.done:
		if g.err != nil {
			return &NotReadyError{Cause: g.err}
		}
		return nil
	default:
		return &NotReadyError{}
	}
}

// Wait blocks until the gate opens, ctx ends, or timeout elapses.
// A non-positive timeout uses DefaultReadyTimeout.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-g.done:
		return g.Check()
	case <-timer.C:
		return &NotReadyError{Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		return &NotReadyError{Cause: ctx.Err()}
	}
}
