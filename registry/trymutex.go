package registry

import "context"

// TryMutex is a mutex that allows lock attempts to fail and/or timeout.
type TryMutex chan struct{}

// NewTryMutex returns a new TryMutex.
func NewTryMutex() TryMutex {
	mutex := make(TryMutex, 1)
	mutex <- struct{}{}

	return mutex
}

// LockWithContext blocks the calling goroutine until it acquires the lock, or
// the given context is cancelled or times out. A return value of true indicates
// that the lock was acquired.
func (mutex TryMutex) LockWithContext(ctx context.Context) bool {
	select {
	case <-mutex:
		return true
	case <-ctx.Done():
		return false
	}
}

// Unlock releases a previously acquired lock.
func (mutex TryMutex) Unlock() {
	select {
	case mutex <- struct{}{}:
	default:
	}
}
