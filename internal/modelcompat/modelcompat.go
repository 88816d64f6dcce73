// Package modelcompat implements the Model Compatibility check of
// spec.md §4.14: every read path compares the embedding-model identity
// stored in metadata against the currently configured provider before
// trusting the vectors on disk. Semantic search paths block on
// mismatch; status and delete paths only warn.
package modelcompat

import (
	"fmt"

	"github.com/codesearch/engine/internal/engineerr"
	"github.com/codesearch/engine/internal/metastore"
)

// Corpus selects which half of EmbeddingModels a check applies to.
type Corpus string

const (
	Code Corpus = "code"
	Docs Corpus = "docs"
)

// Configured is the embedding model identity currently configured for
// a corpus, compared against what metadata recorded at index time.
type Configured struct {
	ModelName string
	Dimension int
}

// Check compares the configured model against the stored one for the
// given corpus. A zero-value stored identity (absence, e.g. an index
// built before the other corpus existed) counts as a mismatch.
func Check(stored metastore.EmbeddingModels, corpus Corpus, configured Configured) error {
	var storedName string
	var storedDim int
	switch corpus {
	case Docs:
		storedName, storedDim = stored.DocsModelName, stored.DocsModelDimension
	default:
		storedName, storedDim = stored.CodeModelName, stored.CodeModelDimension
	}

	if storedName == "" {
		return mismatchError(corpus, "", 0, configured)
	}
	if storedName != configured.ModelName || storedDim != configured.Dimension {
		return mismatchError(corpus, storedName, storedDim, configured)
	}
	return nil
}

func mismatchError(corpus Corpus, storedName string, storedDim int, configured Configured) *engineerr.Error {
	storedDesc := "none"
	if storedName != "" {
		storedDesc = fmt.Sprintf("%s (dim %d)", storedName, storedDim)
	}
	return engineerr.Newf(engineerr.ModelMismatch,
		fmt.Sprintf("the %s index was built with a different embedding model; reindex to search again", corpus),
		"embedding model mismatch for %s corpus: stored=%s configured=%s (dim %d)",
		corpus, storedDesc, configured.ModelName, configured.Dimension,
	).WithDetail("corpus", string(corpus)).
		WithDetail("storedModel", storedName).
		WithDetail("configuredModel", configured.ModelName)
}

// CheckOrWarn behaves like Check but for status/delete paths: instead
// of returning a blocking error it returns a human-readable warning
// string (empty when compatible), per spec.md's "non-blocking warning"
// rule for those two paths.
func CheckOrWarn(stored metastore.EmbeddingModels, corpus Corpus, configured Configured) string {
	err := Check(stored, corpus, configured)
	if err == nil {
		return ""
	}
	return err.(*engineerr.Error).User
}
