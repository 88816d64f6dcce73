package concurrency

import (
	"context"
	"sync"

	"github.com/codesearch/engine/internal/engineerr"
)

// IndexingLock is a process-wide singleton mutual-exclusion guard for any
// project-mutating operation (create, reindex, eager single-file
// reindex). It additionally records the projectPath of the current
// holder so a rejected acquirer can be told which project is in flight.
type IndexingLock struct {
	mu         FIFOMutex
	stateMu    sync.Mutex
	holderPath string
	held       bool
}

var (
	globalIndexLock     *IndexingLock
	globalIndexLockOnce sync.Once
)

// Global returns the process-wide IndexingLock singleton.
func Global() *IndexingLock {
	globalIndexLockOnce.Do(func() {
		globalIndexLock = NewIndexingLock()
	})
	return globalIndexLock
}

// ResetGlobal re-creates the singleton. Exists solely for test isolation.
func ResetGlobal() {
	globalIndexLock = NewIndexingLock()
}

// NewIndexingLock creates a standalone indexing lock (tests may want one
// not shared with the process singleton).
func NewIndexingLock() *IndexingLock {
	return &IndexingLock{mu: *NewFIFOMutex()}
}

// Acquire attempts to take the lock for projectPath. If another project
// (or the same one) currently holds it, Acquire fails immediately with an
// AlreadyIndexing error naming the current holder — it never blocks
// waiting for an in-flight indexing run to finish.
func (l *IndexingLock) Acquire(ctx context.Context, projectPath string) (func(), error) {
	if !l.mu.TryLock() {
		l.stateMu.Lock()
		holder := l.holderPath
		l.stateMu.Unlock()
		return nil, engineerr.Newf(engineerr.AlreadyIndexing,
			"another indexing operation is already in progress",
			"project %q is already being indexed", holder)
	}

	l.stateMu.Lock()
	l.holderPath = projectPath
	l.held = true
	l.stateMu.Unlock()

	release := func() {
		l.stateMu.Lock()
		l.holderPath = ""
		l.held = false
		l.stateMu.Unlock()
		l.mu.Unlock()
	}
	return release, nil
}

// CurrentHolder returns the project path currently holding the lock, and
// whether anyone holds it at all.
func (l *IndexingLock) CurrentHolder() (string, bool) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.holderPath, l.held
}
