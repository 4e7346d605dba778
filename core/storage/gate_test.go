package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	g := NewGate()

	err := g.Check()
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Check() before Open = %v, want ErrNotReady", err)
	}
	var nre *NotReadyError
	if !errors.As(err, &nre) {
		t.Fatalf("Check() error type = %T, want *NotReadyError", err)
	}

	go g.Open(nil)
	if err := g.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if err := g.Check(); err != nil {
		t.Errorf("Check() after Open = %v", err)
	}

	// Later calls are ignored.
	g.Open(errors.New("late"))
	if err := g.Check(); err != nil {
		t.Errorf("Check() after second Open = %v", err)
	}
}

func TestGateFailure(t *testing.T) {
	boom := errors.New("connection refused")
	g := NewGate()
	g.Open(boom)

	err := g.Wait(context.Background(), time.Second)
	if !errors.Is(err, ErrNotReady) || !errors.Is(err, boom) {
		t.Errorf("Wait() = %v, want ErrNotReady wrapping cause", err)
	}
}

func TestGateTimeout(t *testing.T) {
	g := NewGate()

	start := time.Now()
	err := g.Wait(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrNotReady) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want ErrNotReady after timeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() did not honour its timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() with cancelled ctx = %v", err)
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap("insert", "posts", base)

	var se *StorageError
	if !errors.As(err, &se) || se.Op != "insert" || se.Collection != "posts" {
		t.Fatalf("Wrap() = %#v", err)
	}
	if !errors.Is(err, base) {
		t.Error("Wrap() lost the cause")
	}
	if Wrap("find", "posts", err) != err {
		t.Error("Wrap() double-wrapped a StorageError")
	}
	nr := &NotReadyError{}
	if Wrap("find", "posts", nr) != error(nr) {
		t.Error("Wrap() wrapped a readiness error")
	}
	if Wrap("find", "posts", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
