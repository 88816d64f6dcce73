// Package vectorstore implements the Vector Store: a persistent table of
// chunk rows (id, path, text, vector, line range, content hash) backed by
// a pure-Go HNSW graph, generalized from the teacher's HNSWStore to carry
// the full chunk payload the spec requires rather than ids alone.
package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/codesearch/engine/internal/engineerr"
	"github.com/codesearch/engine/internal/security"
)

// Row is a single indexed chunk, as spec.md §4.7 defines the table.
type Row struct {
	ID          string
	Path        string
	Text        string
	Vector      []float32
	StartLine   int
	EndLine     int
	ContentHash string
}

// Config configures the underlying HNSW graph.
type Config struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultConfig returns sensible defaults, matching the teacher's tuning.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// Result is a single scored search hit.
type Result struct {
	Row   Row
	Score float32 // normalized similarity in [0,1]
}

// persisted is the gob-serialized side-channel saved next to the HNSW
// graph file, mirroring the teacher's hnswMetadata envelope.
type persisted struct {
	IDMap   map[string]uint64
	NextKey uint64
	Rows    map[string]Row
	Config  Config
}

// Store is a thread-safe, persisted chunk vector store.
type Store struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	config  Config
	idMap   map[string]uint64
	keyMap  map[uint64]string
	rows    map[string]Row
	nextKey uint64
	closed  bool
	open    bool
}

// Open constructs a Store. If path already holds a persisted graph, it
// is loaded; otherwise Store starts empty with cfg. Open is the scoped
// acquisition spec.md requires — callers must Close on every exit path.
func Open(path string, cfg Config) (*Store, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 32
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	s := &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		rows:   make(map[string]Row),
		open:   true,
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load(path string) error {
	metaPath := path + ".meta"
	mf, err := os.Open(metaPath)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "vector store metadata unreadable", err)
	}
	defer func() { _ = mf.Close() }()

	var p persisted
	if err := gob.NewDecoder(mf).Decode(&p); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "vector store metadata is corrupt", err)
	}
	s.idMap = p.IDMap
	s.nextKey = p.NextKey
	s.rows = p.Rows
	s.config = p.Config
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	gf, err := os.Open(path)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "vector store graph unreadable", err)
	}
	defer func() { _ = gf.Close() }()

	if err := s.graph.Import(bufio.NewReader(gf)); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "vector store graph is corrupt", err)
	}
	return nil
}

// Save persists the graph and row/id-mapping metadata atomically (temp
// file plus rename, same discipline as internal/atomicstore).
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return engineerr.New(engineerr.IndexCorrupt, "vector store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not create index directory", err)
	}

	tmpGraph := path + ".tmp"
	gf, err := os.Create(tmpGraph)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not write vector graph", err)
	}
	if err := s.graph.Export(gf); err != nil {
		_ = gf.Close()
		_ = os.Remove(tmpGraph)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not export vector graph", err)
	}
	if err := gf.Close(); err != nil {
		_ = os.Remove(tmpGraph)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not finalize vector graph", err)
	}
	if err := os.Rename(tmpGraph, path); err != nil {
		_ = os.Remove(tmpGraph)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not finalize vector graph", err)
	}

	metaPath := path + ".meta"
	tmpMeta := metaPath + ".tmp"
	mf, err := os.Create(tmpMeta)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not write vector metadata", err)
	}
	p := persisted{IDMap: s.idMap, NextKey: s.nextKey, Rows: s.rows, Config: s.config}
	if err := gob.NewEncoder(mf).Encode(p); err != nil {
		_ = mf.Close()
		_ = os.Remove(tmpMeta)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not encode vector metadata", err)
	}
	if err := mf.Close(); err != nil {
		_ = os.Remove(tmpMeta)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not finalize vector metadata", err)
	}
	if err := os.Rename(tmpMeta, metaPath); err != nil {
		_ = os.Remove(tmpMeta)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not finalize vector metadata", err)
	}
	return nil
}

// Close releases the store. Subsequent operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.open = false
	return nil
}

// InsertChunks upserts rows by id: an existing id is lazily removed
// from the HNSW graph's live mapping (not physically deleted — deleting
// the last node is a known coder/hnsw defect) before being re-added.
func (s *Store) InsertChunks(ctx context.Context, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.New(engineerr.IndexCorrupt, "vector store is closed")
	}

	for _, r := range rows {
		if len(r.Vector) != s.config.Dimensions {
			return engineerr.Newf(engineerr.IndexCorrupt,
				"embedding dimension mismatch",
				"expected %d dims, got %d for chunk %s", s.config.Dimensions, len(r.Vector), r.ID)
		}
		if existingKey, exists := s.idMap[r.ID]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, r.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID
		s.rows[r.ID] = r
	}
	return nil
}

// DeleteByPath removes every row whose Path equals relPath, returning
// the number of rows removed.
func (s *Store) DeleteByPath(ctx context.Context, relPath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, engineerr.New(engineerr.IndexCorrupt, "vector store is closed")
	}

	var toDelete []string
	for id, row := range s.rows {
		if row.Path == relPath {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
		delete(s.rows, id)
	}
	return len(toDelete), nil
}

// GetChunksByID hydrates rows for the given ids, in no particular order;
// ids with no matching row are silently skipped.
func (s *Store) GetChunksByID(ids []string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Search returns the topK rows ranked by cosine similarity normalized
// to [0,1], ties broken by ascending id.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, engineerr.New(engineerr.IndexCorrupt, "vector store is closed")
	}
	if len(queryVector) != s.config.Dimensions {
		return nil, engineerr.Newf(engineerr.IndexCorrupt,
			"query embedding dimension mismatch",
			"expected %d dims, got %d", s.config.Dimensions, len(queryVector))
	}
	if s.graph.Len() == 0 || topK <= 0 {
		return []Result{}, nil
	}

	q := make([]float32, len(queryVector))
	copy(q, queryVector)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	// Over-fetch since lazily-deleted nodes still live in the graph.
	orphans := s.graph.Len() - len(s.idMap)
	if orphans < 0 {
		orphans = 0
	}
	nodes := s.graph.Search(q, topK+orphans)

	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned by lazy delete
		}
		row, ok := s.rows[id]
		if !ok {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, Result{Row: row, Score: distanceToScore(distance, s.config.Metric)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Row.ID < results[j].Row.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// CountChunks returns the number of live rows.
func (s *Store) CountChunks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// CountFiles returns the number of distinct paths represented.
func (s *Store) CountFiles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range s.rows {
		seen[r.Path] = struct{}{}
	}
	return len(seen)
}

// GetIndexedFiles returns the distinct set of paths with at least one
// live row.
func (s *Store) GetIndexedFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range s.rows {
		seen[r.Path] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetStorageSize returns the combined byte size of the graph and
// metadata files on disk, 0 if neither exists yet.
func GetStorageSize(path string) (int64, error) {
	var total int64
	for _, p := range []string{path, path + ".meta"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// HasData reports whether the store currently holds any rows.
func (s *Store) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows) > 0
}

// Delete drops the table: removes the graph and metadata files from
// disk. It does not touch the in-memory state of any open Store.
func Delete(path string) error {
	for _, p := range []string{path, path + ".meta"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing vector store file %s: %w", p, err)
		}
	}
	return nil
}

// IDListLiteral builds a SQL-safe, comma-separated quoted-literal list
// of ids for use in hand-built IN (...) fragments against sibling
// stores (e.g. the Full-Text Store's deleteByPath).
func IDListLiteral(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = security.QuoteSQLLiteral(id)
	}
	out := ""
	for i, q := range quoted {
		if i > 0 {
			out += ","
		}
		out += q
	}
	return out
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		score := 1.0 - distance/2.0
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		return score
	}
}
