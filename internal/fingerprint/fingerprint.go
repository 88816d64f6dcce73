// Package fingerprint implements the Fingerprint Store: a persisted
// relative-path -> content-hash map used by the Incremental Updater to
// decide whether a file needs re-chunking. Presence of an entry means
// "this version of this file is indexed"; absence means "must (re)index".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"

	"github.com/codesearch/engine/internal/atomicstore"
	"github.com/codesearch/engine/internal/engineerr"
)

// Store is a thread-safe, persisted path -> 64-hex-SHA-256 map.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
	loaded  bool
}

// New returns a Store bound to path, with no entries loaded yet.
func New(path string) *Store {
	return &Store{path: path, entries: make(map[string]string)}
}

// Load reads the fingerprint file. A missing file leaves the Store
// empty (the "unset" case spec.md describes for Fingerprints) with no
// error. Corrupt JSON surfaces as engineerr.IndexCorrupt.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries map[string]string
	err := atomicstore.LoadJSON(s.path, &entries, 0)
	if os.IsNotExist(err) {
		s.entries = make(map[string]string)
		s.loaded = true
		return nil
	}
	if err != nil {
		if _, ok := engineerr.CodeOf(err); ok {
			return err
		}
		return engineerr.Wrap(engineerr.IndexCorrupt, "fingerprint store is corrupt", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// Save persists the current entry set atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return atomicstore.SaveJSON(s.path, s.entries)
}

// Get returns the stored hash for path and whether it was present.
func (s *Store) Get(relPath string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.entries[relPath]
	return h, ok
}

// Set records relPath's content hash.
func (s *Store) Set(relPath, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[relPath] = hash
}

// Delete removes relPath's fingerprint entry, if present.
func (s *Store) Delete(relPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, relPath)
}

// Matches reports whether relPath's live content hash equals the stored
// fingerprint — the "skip, already indexed" fast path for incremental
// update.
func (s *Store) Matches(relPath, liveHash string) bool {
	stored, ok := s.Get(relPath)
	return ok && stored == liveHash
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Paths returns a snapshot of every tracked relative path.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	return out
}

// HashFile computes the 64-hex SHA-256 content hash of a file's bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the 64-hex SHA-256 content hash of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
