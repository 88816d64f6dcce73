// Package concurrency implements the engine's lock primitives: a FIFO
// mutex with timeout support, a reader/writer lock with weak writer
// preference, and the process-wide indexing lock singleton.
package concurrency

import (
	"context"
	"sync"
)

// FIFOMutex grants the lock to waiters in arrival order. A waiter that
// times out (its context is cancelled) is removed from the queue and
// rejected; when the holder releases, the next non-cancelled waiter is
// woken and ownership transfers directly to it without the lock ever
// appearing free in between. If every queued waiter has cancelled, the
// lock becomes free.
type FIFOMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []*waiter
}

type waiter struct {
	grant chan struct{} // closed to grant ownership
	done  bool          // true once removed from the queue (timed out or granted)
}

// NewFIFOMutex creates an unlocked FIFO mutex.
func NewFIFOMutex() *FIFOMutex {
	return &FIFOMutex{}
}

// Lock acquires the mutex, honoring ctx cancellation/timeout. It returns
// ctx.Err() if the context is done before the lock is granted.
func (m *FIFOMutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked && len(m.waiters) == 0 {
		m.locked = true
		m.mu.Unlock()
		return nil
	}

	w := &waiter{grant: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.grant:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		if w.done {
			// Grant raced with cancellation: ownership already transferred,
			// the lock must not be left appearing free.
			return nil
		}
		m.removeWaiterLocked(w)
		return ctx.Err()
	}
}

// TryLock attempts to acquire the mutex without blocking or queuing.
func (m *FIFOMutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || len(m.waiters) > 0 {
		return false
	}
	m.locked = true
	return true
}

// Unlock releases the mutex. If a waiter is queued, ownership transfers
// directly to it (the lock is never observably free in between); if the
// queue is empty, the lock becomes free.
func (m *FIFOMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		next.done = true
		close(next.grant)
		// locked stays true: ownership transferred to next, not released.
		return
	}
	m.locked = false
}

func (m *FIFOMutex) removeWaiterLocked(target *waiter) {
	for i, w := range m.waiters {
		if w == target {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			target.done = true
			return
		}
	}
}

// QueueLen reports the number of waiters currently queued (test/debug use).
func (m *FIFOMutex) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
