// Package fulltext implements the code-leg Full-Text Store: a persisted
// SQLite FTS5 inverted index over chunk text, exposing the ingest /
// serialize / deserialize / search / stats contract spec.md §4.8
// requires. If deserialization fails the store is treated as
// unavailable for the session, per §4.8 and the hybrid-search
// mode-downgrade rule in §4.11.
package fulltext

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/codesearch/engine/internal/engineerr"
	"github.com/codesearch/engine/internal/security"
)

// Hit is a single ranked full-text result; raw score is BM25-derived
// and not guaranteed to fall in any particular range (hybrid search
// rescales it before fusion).
type Hit struct {
	ID       string
	RawScore float64
}

// Stats mirrors spec.md's `stats` accessor.
type Stats struct {
	DocumentCount int
}

// Store is the SQLite FTS5-backed code full-text index.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	stopWords map[string]struct{}
	closed    bool
}

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
	doc_id UNINDEXED,
	content,
	tokenize='unicode61'
);
CREATE TABLE IF NOT EXISTS doc_ids (
	doc_id TEXT PRIMARY KEY
);
`

// Open creates or opens path as a WAL-mode SQLite FTS5 database. An
// empty path opens an in-memory database, useful for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not open full-text store", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not configure full-text store", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not initialize full-text schema", err)
	}

	return &Store{db: db, path: path, stopWords: StopWordSet(DefaultStopWords)}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

func (s *Store) processedContent(text string) string {
	tokens := FilterStopWords(Tokenize(text), s.stopWords)
	return strings.Join(tokens, " ")
}

// Ingest upserts (id, text) pairs, code-aware tokenized, FTS5 does not
// support REPLACE on virtual tables so each id is deleted then
// re-inserted within one transaction.
func (s *Store) Ingest(ctx context.Context, chunks map[string]string) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.New(engineerr.IndexCorrupt, "full-text store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not begin full-text transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not prepare full-text delete", err)
	}
	defer func() { _ = del.Close() }()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not prepare full-text insert", err)
	}
	defer func() { _ = ins.Close() }()

	trackID, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not prepare full-text id tracking", err)
	}
	defer func() { _ = trackID.Close() }()

	for id, text := range chunks {
		if _, err := del.ExecContext(ctx, id); err != nil {
			return engineerr.Wrap(engineerr.IndexCorrupt, "could not clear prior full-text entry", err)
		}
		if _, err := ins.ExecContext(ctx, id, s.processedContent(text)); err != nil {
			return engineerr.Wrap(engineerr.IndexCorrupt, "could not ingest full-text entry", err)
		}
		if _, err := trackID.ExecContext(ctx, id); err != nil {
			return engineerr.Wrap(engineerr.IndexCorrupt, "could not track full-text id", err)
		}
	}
	return tx.Commit()
}

// DeleteByIDs removes entries by id, using an escaped literal IN-clause
// (the ids are our own content-addressed hex hashes, never raw user
// input) built through the shared SQL-literal escape routine.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.New(engineerr.IndexCorrupt, "full-text store is closed")
	}

	literals := make([]string, len(ids))
	for i, id := range ids {
		literals[i] = security.QuoteSQLLiteral(id)
	}
	inClause := strings.Join(literals, ",")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not begin full-text delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM fts_content WHERE doc_id IN (%s)", inClause)); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not delete full-text entries", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM doc_ids WHERE doc_id IN (%s)", inClause)); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not delete full-text id tracking", err)
	}
	return tx.Commit()
}

// Search runs queryString through the same tokenization as Ingest and
// returns up to topK hits ordered by raw BM25 score descending (best
// match first). FTS5's bm25() returns negative values where lower is
// better; the sign is flipped so callers see higher-is-better scores.
func (s *Store) Search(ctx context.Context, queryString string, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, engineerr.New(engineerr.IndexCorrupt, "full-text store is closed")
	}
	if strings.TrimSpace(queryString) == "" {
		return []Hit{}, nil
	}

	tokens := FilterStopWords(Tokenize(queryString), s.stopWords)
	if len(tokens) == 0 {
		return []Hit{}, nil
	}
	processed := strings.Join(tokens, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) as score
		FROM fts_content
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, processed, topK)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []Hit{}, nil
		}
		return nil, engineerr.Wrap(engineerr.IndexCorrupt, "full-text search failed", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not scan full-text result", err)
		}
		hits = append(hits, Hit{ID: id, RawScore: -score})
	}
	return hits, rows.Err()
}

// Stats reports index-level document counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count); err != nil {
		return Stats{}
	}
	return Stats{DocumentCount: count}
}

// Serialize checkpoints the WAL and returns the database file's raw
// bytes, satisfying spec.md's serialize()->bytes contract. Only valid
// for a file-backed store (path != "").
func (s *Store) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, engineerr.New(engineerr.IndexCorrupt, "full-text store is closed")
	}
	if s.path == "" {
		return nil, engineerr.New(engineerr.IndexCorrupt, "in-memory full-text store cannot be serialized")
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not checkpoint full-text store", err)
	}
	return os.ReadFile(s.path)
}

// Deserialize loads a previously serialized database from b into path,
// validating it before swapping it in. It returns false (no error) on
// any validation failure so callers can treat the engine as merely
// unavailable for this session rather than fatally broken, per §4.8.
func Deserialize(path string, b []byte) (ok bool, err error) {
	tmp := path + ".restore.tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return false, err
	}
	defer func() { _ = os.Remove(tmp) }()

	if !validIntegrity(tmp) {
		return false, nil
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, err
	}
	return true, nil
}

func validIntegrity(path string) bool {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return false
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil || result != "ok" {
		return false
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_content'`).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// CheckIntegrity runs the same `PRAGMA integrity_check` + schema check
// Deserialize validates a restored snapshot with, but against the live
// database file at path. A missing file is not a corruption (an index
// that hasn't been built yet, or whose full-text leg is absent), so it
// reports ok. Used by get_index_status to surface a corrupt full-text
// store as a warning instead of a hard failure.
func CheckIntegrity(path string) (ok bool, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return true, nil
	}
	return validIntegrity(path), nil
}
