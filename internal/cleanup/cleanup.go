// Package cleanup implements the Cleanup Registry of spec.md §5:
// shutdown handlers run in LIFO order, each bounded by its own timeout,
// with one handler's error or timeout isolated from the rest. Grounded
// on the teacher's internal/daemon/server.go shutdown-flag pattern
// (a single guarded bool plus a WaitGroup for in-flight work),
// generalized from one inline shutdown path into a registry any
// package can add teardown steps to.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codesearch/engine/internal/engineerr"
)

// DefaultTimeout bounds how long one handler may run during shutdown.
const DefaultTimeout = 30 * time.Second

// Handler is one shutdown teardown step.
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	fn      Handler
	timeout time.Duration
}

// Registry collects shutdown handlers and runs them LIFO on Shutdown.
// Safe for concurrent Register/Shutdown calls.
type Registry struct {
	mu       sync.Mutex
	entries  []entry
	shutdown bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register appends a named handler with the default timeout. Returns
// an error if shutdown has already begun; the caller's teardown step
// is then the caller's own responsibility to run inline.
func (r *Registry) Register(name string, fn Handler) error {
	return r.RegisterWithTimeout(name, fn, DefaultTimeout)
}

// RegisterWithTimeout appends a named handler with a custom timeout.
func (r *Registry) RegisterWithTimeout(name string, fn Handler, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return engineerr.New(engineerr.ResourceLimit, "cleanup registry is already shutting down")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.entries = append(r.entries, entry{name: name, fn: fn, timeout: timeout})
	return nil
}

// Shutdown runs every registered handler in LIFO order (most recently
// registered first), isolating each handler's error/timeout from the
// rest, and returns every error encountered keyed by handler name. A
// second call to Shutdown is a no-op returning nil.
func (r *Registry) Shutdown(ctx context.Context) map[string]error {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	r.shutdown = true
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	errs := make(map[string]error)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := runWithTimeout(ctx, e); err != nil {
			slog.Warn("cleanup handler failed", slog.String("handler", e.name), slog.String("error", err.Error()))
			errs[e.name] = err
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func runWithTimeout(ctx context.Context, e entry) error {
	hctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.fn(hctx)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return hctx.Err()
	}
}

// IsShuttingDown reports whether Shutdown has begun (or finished).
func (r *Registry) IsShuttingDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdown
}
