package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/engine/internal/indexlifecycle"
)

func TestPrepareToolsIndexesOnFirstRun(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0o644))

	tl, err := prepareTools(context.Background(), root)
	require.NoError(t, err)

	status, err := tl.GetIndexStatus()
	require.NoError(t, err)
	assert.NotEqual(t, indexlifecycle.StatusNotFound, status.Status)
	assert.Equal(t, 1, status.TotalFiles)
}

func TestPrepareToolsLeavesExistingIndexAlone(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0o644))

	_, err := prepareTools(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "extra.go"),
		[]byte("package main\n\nfunc extra() {}\n"), 0o644))

	tl, err := prepareTools(context.Background(), root)
	require.NoError(t, err)

	status, err := tl.GetIndexStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalFiles, "second run should not reindex the new file")
}

func TestPrepareToolsDefaultsToCwd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0o644))
	t.Chdir(root)

	tl, err := prepareTools(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, root, tl.Paths.ProjectRoot)
}
