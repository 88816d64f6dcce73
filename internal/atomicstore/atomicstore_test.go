package atomicstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/engine/internal/engineerr"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveJSONLeavesNoTempFileAndEndsWithNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")

	require.NoError(t, SaveJSON(path, sample{Name: "a", Count: 3}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(raw) > 0 && raw[len(raw)-1] == '\n')

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.")
	}

	var out sample
	require.NoError(t, LoadJSON(path, &out, 0))
	assert.Equal(t, sample{Name: "a", Count: 3}, out)
}

func TestLoadJSONRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x","count":1}`), 0o644))

	var out sample
	err := LoadJSON(path, &out, 4)
	require.Error(t, err)
	code, ok := engineerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, engineerr.ResourceLimit, code)
}

func TestLoadJSONMissingFileIsNotExist(t *testing.T) {
	var out sample
	err := LoadJSON(filepath.Join(t.TempDir(), "missing.json"), &out, 0)
	assert.True(t, os.IsNotExist(err))
}
