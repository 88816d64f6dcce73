// Package metastore implements the Metadata Store: index-level
// statistics, embedding-model identity, hybrid-search configuration, and
// the indexing state machine, persisted as metadata.json. Metadata is
// created on first "create", mutated only by lifecycle operations, and
// deleted only via "delete" — searches read it but never mutate it.
package metastore

import (
	"os"
	"sync"
	"time"

	"github.com/codesearch/engine/internal/atomicstore"
	"github.com/codesearch/engine/internal/engineerr"
)

// IndexingState is the lifecycle state machine's current phase.
type IndexingState string

const (
	StateInProgress IndexingState = "in_progress"
	StateComplete   IndexingState = "complete"
	StateFailed     IndexingState = "failed"
)

// Stats holds index-level file/chunk/storage counters.
type Stats struct {
	TotalFiles       int   `json:"totalFiles"`
	TotalChunks      int   `json:"totalChunks"`
	StorageBytes     int64 `json:"storageBytes"`
	FailedEmbeddings int   `json:"failedEmbeddings"`
}

// EmbeddingModels records the model identity each store's vectors were
// produced with, used by the Model Compatibility check.
type EmbeddingModels struct {
	CodeModelName      string `json:"codeModelName"`
	CodeModelDimension int    `json:"codeModelDimension"`
	DocsModelName      string `json:"docsModelName"`
	DocsModelDimension int    `json:"docsModelDimension"`
}

// HybridSearchConfig records whether hybrid fusion is enabled, its
// default alpha, and which FTS engine backs it.
type HybridSearchConfig struct {
	Enabled      bool    `json:"enabled"`
	DefaultAlpha float64 `json:"defaultAlpha"`
	FTSEngine    string  `json:"ftsEngine"`
}

// IndexingStateInfo is the metadata-resident state-machine snapshot.
type IndexingStateInfo struct {
	State          IndexingState `json:"state"`
	ExpectedFiles  *int          `json:"expectedFiles,omitempty"`
	ProcessedFiles *int          `json:"processedFiles,omitempty"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	ErrorMessage   *string       `json:"errorMessage,omitempty"`
}

// Metadata is the full persisted metadata.json document.
type Metadata struct {
	ProjectPath           string              `json:"projectPath"`
	Stats                 Stats               `json:"stats"`
	LastFullIndex         *time.Time          `json:"lastFullIndex,omitempty"`
	LastIncrementalUpdate *time.Time          `json:"lastIncrementalUpdate,omitempty"`
	EmbeddingModels       EmbeddingModels     `json:"embeddingModels"`
	HybridSearch          HybridSearchConfig  `json:"hybridSearch"`
	IndexingState         IndexingStateInfo   `json:"indexingState"`
}

// Store is a thread-safe, persisted Metadata document.
type Store struct {
	mu   sync.RWMutex
	path string
	data *Metadata
}

// New returns a Store bound to path with nothing loaded yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads metadata.json. A missing file leaves Get returning
// (nil, false) — the "unset" case spec.md describes for Metadata.
// Corrupt JSON surfaces as engineerr.IndexCorrupt.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m Metadata
	err := atomicstore.LoadJSON(s.path, &m, 0)
	if os.IsNotExist(err) {
		s.data = nil
		return nil
	}
	if err != nil {
		if _, ok := engineerr.CodeOf(err); ok {
			return err
		}
		return engineerr.Wrap(engineerr.IndexCorrupt, "metadata store is corrupt", err)
	}
	s.data = &m
	return nil
}

// Save persists the current metadata document atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return engineerr.New(engineerr.IndexCorrupt, "no metadata to save")
	}
	return atomicstore.SaveJSON(s.path, s.data)
}

// Get returns a copy of the loaded metadata and whether it is present.
func (s *Store) Get() (Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return Metadata{}, false
	}
	return *s.data, true
}

// Set replaces the in-memory metadata document (does not persist; call
// Save afterward).
func (s *Store) Set(m Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m
	s.data = &cp
}

// AssertProjectPath verifies that loaded metadata's projectPath matches
// expected, per spec.md's "mismatch => index-not-found" rule.
func (s *Store) AssertProjectPath(expected string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return engineerr.New(engineerr.IndexNotFound, "index metadata not found")
	}
	if s.data.ProjectPath != expected {
		return engineerr.Newf(engineerr.IndexNotFound,
			"index not found for this project",
			"metadata projectPath %q does not match requested %q", s.data.ProjectPath, expected)
	}
	return nil
}

// MarkInProgress transitions the state machine to in_progress, recording
// the expected file count and start time.
func (s *Store) MarkInProgress(expectedFiles int, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return
	}
	ef := expectedFiles
	zero := 0
	s.data.IndexingState = IndexingStateInfo{
		State:          StateInProgress,
		ExpectedFiles:  &ef,
		ProcessedFiles: &zero,
		StartedAt:      &startedAt,
	}
}

// AdvanceProgress updates the processed-file counter during an
// in-progress index/reindex.
func (s *Store) AdvanceProgress(processedFiles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return
	}
	pf := processedFiles
	s.data.IndexingState.ProcessedFiles = &pf
}

// MarkComplete transitions the state machine to complete, clearing
// transient progress fields.
func (s *Store) MarkComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return
	}
	s.data.IndexingState = IndexingStateInfo{State: StateComplete}
}

// MarkFailed transitions the state machine to failed, recording the
// error message surfaced to subsequent status checks.
func (s *Store) MarkFailed(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return
	}
	msg := message
	s.data.IndexingState = IndexingStateInfo{State: StateFailed, ErrorMessage: &msg}
}
