// Package strategy implements the Indexing Strategy orchestrator of
// spec.md §4.12: eager scheduling reindexes a changed file immediately
// under the project's writer lock, while lazy scheduling accumulates a
// dirty set (in memory and in dirty-files.json) that is drained by
// flush() before the next search. Grounded on the teacher's
// internal/watcher event-to-reindex wiring, generalized from a
// push-only event pipe to an explicit orchestrator the search tools
// call into.
package strategy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/codesearch/engine/internal/atomicstore"
	"github.com/codesearch/engine/internal/concurrency"
	"github.com/codesearch/engine/internal/embedder"
	"github.com/codesearch/engine/internal/updater"
)

// Mode selects between eager and lazy scheduling of file-change events.
type Mode string

const (
	ModeEager Mode = "eager"
	ModeLazy  Mode = "lazy"
)

// Reindexer is the single-file reindex entry point the strategy drives;
// satisfied by updater.ReindexFile.
type Reindexer func(ctx context.Context, paths updater.Paths, relPath string, emb embedder.Provider) (updater.Result, error)

// Orchestrator tracks the active strategy for one project and owns its
// dirty set when running lazy.
type Orchestrator struct {
	mu        sync.Mutex
	mode      Mode
	dirty     map[string]struct{}
	dirtyPath string
	paths     updater.Paths
	writer    *concurrency.RWLock
	emb       embedder.Provider
	reindex   Reindexer
}

// New creates an orchestrator for one project's index, defaulting to
// eager scheduling until SetStrategy says otherwise.
func New(paths updater.Paths, writer *concurrency.RWLock, emb embedder.Provider) *Orchestrator {
	return &Orchestrator{
		mode:      ModeEager,
		dirty:     make(map[string]struct{}),
		dirtyPath: dirtyFilesPath(paths.IndexDir),
		paths:     paths,
		writer:    writer,
		emb:       emb,
		reindex:   updater.ReindexFile,
	}
}

func dirtyFilesPath(indexDir string) string {
	return filepath.Join(indexDir, "dirty-files.json")
}

// SetStrategy switches the active mode. Switching from lazy to eager
// does not implicitly flush — callers that need the dirty set drained
// first should call Flush before SetStrategy.
func (o *Orchestrator) SetStrategy(mode Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if mode != ModeEager && mode != ModeLazy {
		mode = ModeEager
	}
	o.mode = mode
}

// CurrentStrategy reports the active mode.
func (o *Orchestrator) CurrentStrategy() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// LoadDirtySet restores the in-memory dirty set from dirty-files.json,
// tolerating a missing file (fresh index, nothing dirty yet).
func (o *Orchestrator) LoadDirtySet() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var paths []string
	if err := atomicstore.LoadJSON(o.dirtyPath, &paths, 0); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, p := range paths {
		o.dirty[p] = struct{}{}
	}
	return nil
}

// OnFileChanged handles one file-change notification. Under eager mode
// it reindexes relPath immediately, holding the project writer lock for
// the duration. Under lazy mode it appends relPath to the dirty set and
// persists dirty-files.json without reindexing.
func (o *Orchestrator) OnFileChanged(ctx context.Context, relPath string) error {
	o.mu.Lock()
	mode := o.mode
	o.mu.Unlock()

	if mode == ModeLazy {
		return o.markDirty(relPath)
	}
	return o.reindexOne(ctx, relPath)
}

func (o *Orchestrator) markDirty(relPath string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dirty[relPath] = struct{}{}
	return o.saveDirtySetLocked()
}

func (o *Orchestrator) saveDirtySetLocked() error {
	paths := make([]string, 0, len(o.dirty))
	for p := range o.dirty {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return atomicstore.SaveJSON(o.dirtyPath, paths)
}

func (o *Orchestrator) reindexOne(ctx context.Context, relPath string) error {
	if err := o.writer.Lock(ctx); err != nil {
		return err
	}
	defer o.writer.Unlock()

	_, err := o.reindex(ctx, o.paths, relPath, o.emb)
	return err
}

// Flush drains the dirty set through single-file reindex, one path at a
// time under the writer lock, clearing and re-persisting the dirty set
// as it goes so a crash mid-flush loses at most the in-flight path.
// Lazy callers must call Flush before every search. Under eager mode
// OnFileChanged adds nothing to the dirty set, so Flush only drains
// paths left from an earlier lazy period or restored by LoadDirtySet.
func (o *Orchestrator) Flush(ctx context.Context) error {
	for {
		o.mu.Lock()
		if len(o.dirty) == 0 {
			o.mu.Unlock()
			return nil
		}
		var next string
		for p := range o.dirty {
			next = p
			break
		}
		o.mu.Unlock()

		if err := o.reindexOne(ctx, next); err != nil {
			return err
		}

		o.mu.Lock()
		delete(o.dirty, next)
		err := o.saveDirtySetLocked()
		o.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// DirtyCount reports how many paths are currently pending flush.
func (o *Orchestrator) DirtyCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.dirty)
}
