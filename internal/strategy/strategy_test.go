package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/engine/internal/concurrency"
	"github.com/codesearch/engine/internal/embedder"
	"github.com/codesearch/engine/internal/updater"
	"github.com/codesearch/engine/internal/vectorstore"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *[]string) {
	t.Helper()
	indexDir := t.TempDir()
	paths := updater.Paths{ProjectRoot: t.TempDir(), IndexDir: indexDir, VectorConfig: vectorstore.DefaultConfig(8)}
	emb := embedder.New(8, "hash-8")
	o := New(paths, concurrency.NewRWLock(), emb)

	var calls []string
	o.reindex = func(ctx context.Context, p updater.Paths, relPath string, e embedder.Provider) (updater.Result, error) {
		calls = append(calls, relPath)
		return updater.Result{}, nil
	}
	return o, &calls
}

func TestDefaultStrategyIsEager(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	assert.Equal(t, ModeEager, o.CurrentStrategy())
}

func TestSetStrategyInvalidFallsBackToEager(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.SetStrategy(Mode("bogus"))
	assert.Equal(t, ModeEager, o.CurrentStrategy())
}

func TestEagerReindexesImmediately(t *testing.T) {
	o, calls := newTestOrchestrator(t)
	require.NoError(t, o.OnFileChanged(context.Background(), "a.go"))
	assert.Equal(t, []string{"a.go"}, *calls)
	assert.Equal(t, 0, o.DirtyCount())
}

func TestLazyAccumulatesDirtySetWithoutReindexing(t *testing.T) {
	o, calls := newTestOrchestrator(t)
	o.SetStrategy(ModeLazy)

	require.NoError(t, o.OnFileChanged(context.Background(), "a.go"))
	require.NoError(t, o.OnFileChanged(context.Background(), "b.go"))

	assert.Empty(t, *calls)
	assert.Equal(t, 2, o.DirtyCount())

	data, err := os.ReadFile(filepath.Join(o.paths.IndexDir, "dirty-files.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "a.go")
	assert.Contains(t, string(data), "b.go")
}

func TestFlushDrainsDirtySetAndClearsIt(t *testing.T) {
	o, calls := newTestOrchestrator(t)
	o.SetStrategy(ModeLazy)
	require.NoError(t, o.OnFileChanged(context.Background(), "a.go"))
	require.NoError(t, o.OnFileChanged(context.Background(), "b.go"))

	require.NoError(t, o.Flush(context.Background()))
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, *calls)
	assert.Equal(t, 0, o.DirtyCount())
}

func TestFlushIsNoOpUnderEager(t *testing.T) {
	o, calls := newTestOrchestrator(t)
	require.NoError(t, o.Flush(context.Background()))
	assert.Empty(t, *calls)
}

func TestLoadDirtySetToleratesMissingFile(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	require.NoError(t, o.LoadDirtySet())
	assert.Equal(t, 0, o.DirtyCount())
}

func TestLoadDirtySetRestoresPersistedEntries(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.SetStrategy(ModeLazy)
	require.NoError(t, o.OnFileChanged(context.Background(), "a.go"))

	o2 := New(o.paths, concurrency.NewRWLock(), embedder.New(8, "hash-8"))
	require.NoError(t, o2.LoadDirtySet())
	assert.Equal(t, 1, o2.DirtyCount())
}
