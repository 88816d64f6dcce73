// Package docsindex implements the docs-leg Full-Text Store: a Bleve v2
// disk index over prose documentation chunks, exposing the same
// ingest / serialize / deserialize / search / stats contract as
// internal/fulltext's code-leg store (spec.md §4.8), but over Bleve's
// default prose analyzer instead of fulltext's code-aware tokenizer —
// doc chunks are natural-language text, not identifiers.
package docsindex

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/codesearch/engine/internal/engineerr"
)

// Hit is a single ranked docs result.
type Hit struct {
	ID           string
	RawScore     float64
	MatchedTerms []string
}

// Stats mirrors spec.md's `stats` accessor.
type Stats struct {
	DocumentCount int
}

// document is the structure actually handed to Bleve for indexing.
type document struct {
	Content string `json:"content"`
}

// Store is the Bleve-backed docs full-text index.
type Store struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// Open creates or opens a Bleve index at path. An empty path opens an
// in-memory index, useful for tests.
func Open(path string) (*Store, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not create docs index directory", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not open docs index", err)
	}

	return &Store{index: idx, path: path}, nil
}

// Close releases the underlying Bleve index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}

// Ingest upserts (id, text) docs content in a single batch.
func (s *Store) Ingest(ctx context.Context, chunks map[string]string) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.New(engineerr.IndexCorrupt, "docs index is closed")
	}

	batch := s.index.NewBatch()
	for id, text := range chunks {
		if err := batch.Index(id, document{Content: text}); err != nil {
			return engineerr.Wrap(engineerr.IndexCorrupt, "could not index docs chunk", err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not commit docs batch", err)
	}
	return nil
}

// DeleteByIDs removes docs by id.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.New(engineerr.IndexCorrupt, "docs index is closed")
	}

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := s.index.Batch(batch); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not delete docs chunks", err)
	}
	return nil
}

// Search runs a match query over the content field and returns up to
// topK hits ordered by Bleve's own relevance score, descending.
func (s *Store) Search(ctx context.Context, queryString string, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, engineerr.New(engineerr.IndexCorrupt, "docs index is closed")
	}
	if strings.TrimSpace(queryString) == "" {
		return []Hit{}, nil
	}

	q := bleve.NewMatchQuery(queryString)
	q.SetField("content")

	req := bleve.NewSearchRequest(q)
	req.Size = topK
	req.IncludeLocations = true

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IndexCorrupt, "docs search failed", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, Hit{ID: hit.ID, RawScore: hit.Score, MatchedTerms: matchedTerms(hit)})
	}
	return hits, nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out
}

// Stats reports index-level document counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	count, _ := s.index.DocCount()
	return Stats{DocumentCount: int(count)}
}

// Serialize tars the on-disk Bleve index directory into a byte slice,
// satisfying spec.md's serialize()->bytes contract. Only valid for a
// file-backed store (path != "").
func (s *Store) Serialize() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, engineerr.New(engineerr.IndexCorrupt, "docs index is closed")
	}
	if s.path == "" {
		return nil, engineerr.New(engineerr.IndexCorrupt, "in-memory docs index cannot be serialized")
	}
	return tarDir(s.path)
}

// Deserialize untars b into path and validates the result can be
// opened as a Bleve index before reporting success. A snapshot that
// fails to untar or open returns ok=false with no error, leaving the
// docs engine "unavailable for this session", per §4.8; a failure to
// rename the validated index into place is returned as an error.
func Deserialize(path string, b []byte) (ok bool, err error) {
	tmpDir := path + ".restore.tmp"
	_ = os.RemoveAll(tmpDir)
	if err := untarDir(tmpDir, b); err != nil {
		_ = os.RemoveAll(tmpDir)
		return false, nil
	}

	idx, err := bleve.Open(tmpDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return false, nil
	}
	_ = idx.Close()

	_ = os.RemoveAll(path)
	if err := os.Rename(tmpDir, path); err != nil {
		_ = os.RemoveAll(tmpDir)
		return false, err
	}
	return true, nil
}

func tarDir(root string) ([]byte, error) {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)

	go func() {
		tw := tar.NewWriter(pw)
		walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			_, err = io.Copy(tw, f)
			return err
		})
		closeErr := tw.Close()
		if walkErr == nil {
			walkErr = closeErr
		}
		errCh <- walkErr
		_ = pw.CloseWithError(walkErr)
	}()

	data, readErr := io.ReadAll(pr)
	tarErr := <-errCh
	if tarErr != nil {
		return nil, tarErr
	}
	if readErr != nil {
		return nil, readErr
	}
	return data, nil
}

func untarDir(dest string, data []byte) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dest, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) && target != filepath.Clean(dest) {
			return fmt.Errorf("tar entry escapes destination: %s", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar stream already read into memory
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}
