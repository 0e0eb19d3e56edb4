package registry

import (
	"context"
	"fmt"
)

// Writer serializes every write made to a registry.
//
// The bulk and single-key write paths share one Writer so that a
// reconfiguration, a per-key update and a truncation never interleave.
type Writer struct {
	Registry Registry

	mutex TryMutex
}

// NewWriter returns a Writer for the given registry.
func NewWriter(r Registry) *Writer {
	return &Writer{
		Registry: r,
		mutex:    NewTryMutex(),
	}
}

// Set stores value under k once the write lock is acquired.
func (w *Writer) Set(ctx context.Context, k Key, value string) error {
	if err := w.lock(ctx); err != nil {
		return err
	}
	defer w.mutex.Unlock()

	return w.Registry.Set(ctx, k, value)
}

// Clear removes every value in the given namespace once the write lock is
// acquired.
func (w *Writer) Clear(ctx context.Context, ns Namespace) error {
	if err := w.lock(ctx); err != nil {
		return err
	}
	defer w.mutex.Unlock()

	return w.Registry.Clear(ctx, ns)
}

func (w *Writer) lock(ctx context.Context) error {
	if w.mutex == nil {
		panic("registry writer must be created with NewWriter")
	}

	if !w.mutex.LockWithContext(ctx) {
		return fmt.Errorf("could not acquire registry write lock: %w", ctx.Err())
	}

	return nil
}
