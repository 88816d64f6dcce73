// Package updater implements the Incremental Updater: single-file
// reindex following the exact nine-step sequence of spec.md §4.10,
// where each step either fully succeeds or the whole operation aborts
// before any destructive action was observable, and the vector store
// is closed on every exit path. Grounded on the teacher's
// internal/index/coordinator.go single-file reindex path, generalized
// from its in-process store handles to this engine's on-disk Vector/
// Fingerprint/Metadata Store contracts.
package updater

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codesearch/engine/internal/chunker"
	"github.com/codesearch/engine/internal/embedder"
	"github.com/codesearch/engine/internal/engineerr"
	"github.com/codesearch/engine/internal/fingerprint"
	"github.com/codesearch/engine/internal/idxconfig"
	"github.com/codesearch/engine/internal/metastore"
	"github.com/codesearch/engine/internal/pathsafe"
	"github.com/codesearch/engine/internal/policy"
	"github.com/codesearch/engine/internal/vectorstore"
)

// Paths locates every on-disk artifact a single-file reindex touches.
type Paths struct {
	ProjectRoot  string // absolute project root the relative path is safe-joined under
	IndexDir     string // directory holding the vector store, fingerprints.json, metadata.json, config.json
	VectorConfig vectorstore.Config
}

// Result reports the outcome of one ReindexFile call.
type Result struct {
	ChunksCreated int
}

// docsExtensions routes a reindexed file to the docs vector store and
// docs fingerprint file instead of the code ones, mirroring
// internal/indexlifecycle's code/docs corpus split for full indexing
// runs so a single file always lands in the same corpus regardless of
// which path created it.
var docsExtensions = map[string]bool{
	".md": true, ".mdx": true, ".markdown": true,
	".txt": true, ".rst": true, ".adoc": true,
}

func isDocsPath(relPath string) bool {
	return docsExtensions[strings.ToLower(filepath.Ext(relPath))]
}

func vectorGraphPath(indexDir string, docs bool) string {
	if docs {
		return filepath.Join(indexDir, "docs-vector-store", "graph.bin")
	}
	return filepath.Join(indexDir, "vector-store", "graph.bin")
}
func fingerprintPath(indexDir string, docs bool) string {
	if docs {
		return filepath.Join(indexDir, "docs-fingerprints.json")
	}
	return filepath.Join(indexDir, "fingerprints.json")
}
func metadataPath(indexDir string) string { return filepath.Join(indexDir, "metadata.json") }
func configPath(indexDir string) string   { return filepath.Join(indexDir, "config.json") }

// ReindexFile reindexes a single file at relPath (relative to
// paths.ProjectRoot) using emb to embed its chunks, following the exact
// sequence of spec.md §4.10. emb must be the embedder configured for
// relPath's corpus (code or docs, per its extension).
func ReindexFile(ctx context.Context, paths Paths, relPath string, emb embedder.Provider) (Result, error) {
	// 1. Verify the index exists.
	if _, err := os.Stat(metadataPath(paths.IndexDir)); err != nil {
		return Result{}, engineerr.New(engineerr.IndexNotFound, "index does not exist")
	}

	// 2. Load config and policy; validate the relative path under safe-join.
	cfg := idxconfig.Load(configPath(paths.IndexDir))
	absPath, ok := pathsafe.SafeJoin(paths.ProjectRoot, relPath)
	if !ok {
		return Result{}, engineerr.New(engineerr.InvalidPath, "path escapes project root")
	}
	info, statErr := os.Stat(absPath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	p := policy.New(cfg, nil)
	decision := p.Evaluate(policy.Candidate{RelPath: relPath, AbsPath: absPath, SizeBytes: size})
	if !decision.ShouldIndex {
		return Result{}, engineerr.Newf(engineerr.InvalidPath, "file rejected by indexing policy",
			"policy rejected %s: %s (%s)", relPath, decision.Reason, decision.Category)
	}

	docs := isDocsPath(relPath)

	// 3. Open vector store, load fingerprint and metadata stores.
	vec, err := vectorstore.Open(vectorGraphPath(paths.IndexDir, docs), paths.VectorConfig)
	if err != nil {
		return Result{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not open vector store", err)
	}
	result, err := reindexWithOpenStore(ctx, paths, relPath, absPath, docs, vec, emb)
	closeErr := vec.Close()
	if err != nil {
		return Result{}, err
	}
	if closeErr != nil {
		return Result{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not close vector store", closeErr)
	}
	return result, nil
}

func reindexWithOpenStore(ctx context.Context, paths Paths, relPath, absPath string, docs bool, vec *vectorstore.Store, emb embedder.Provider) (Result, error) {
	fp := fingerprint.New(fingerprintPath(paths.IndexDir, docs))
	if err := fp.Load(); err != nil {
		return Result{}, err
	}
	meta := metastore.New(metadataPath(paths.IndexDir))
	if err := meta.Load(); err != nil {
		return Result{}, err
	}

	// 4. deleteByPath on the vector store.
	if _, err := vec.DeleteByPath(ctx, relPath); err != nil {
		return Result{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not delete existing chunks for path", err)
	}
	graphPath := vectorGraphPath(paths.IndexDir, docs)

	// 5. Chunk the file.
	content, err := os.ReadFile(absPath)
	if err != nil {
		return Result{}, engineerr.Wrap(engineerr.FileNotFound, "could not read file", err)
	}
	chunks := chunker.Chunk(relPath, content)

	// 6. Batch-embed; insert only rows whose embeddings succeeded.
	chunksCreated := 0
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, rows := embedChunks(ctx, emb, chunks, texts)
		if len(rows) > 0 {
			if err := vec.InsertChunks(ctx, rows); err != nil {
				return Result{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not insert chunks", err)
			}
		}
		chunksCreated = len(rows)
		_ = vectors
	}
	if err := vec.Save(graphPath); err != nil {
		return Result{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not persist vector store", err)
	}

	// 7. Compute new content hash, set fingerprint entry, save.
	newHash := fingerprint.HashBytes(content)
	fp.Set(relPath, newHash)
	if err := fp.Save(); err != nil {
		return Result{}, err
	}

	// 8. Recompute counts/storage size; update metadata; save.
	m, _ := meta.Get()
	m.Stats.TotalFiles = vec.CountFiles()
	m.Stats.TotalChunks = vec.CountChunks()
	if size, err := vectorstore.GetStorageSize(graphPath); err == nil {
		m.Stats.StorageBytes = size
	}
	now := time.Now()
	m.LastIncrementalUpdate = &now
	meta.Set(m)
	if err := meta.Save(); err != nil {
		return Result{}, err
	}

	return Result{ChunksCreated: chunksCreated}, nil
}

// embedChunks batch-embeds texts, dropping any chunk whose embedding
// failed (logged as a warning) rather than failing the whole call.
func embedChunks(ctx context.Context, emb embedder.Provider, chunks []chunker.Chunk, texts []string) ([][]float32, []vectorstore.Row) {
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("batch embedding failed, falling back to per-chunk embedding", slog.String("error", err.Error()))
		vectors = make([][]float32, len(texts))
		for i, text := range texts {
			v, embedErr := emb.Embed(ctx, text)
			if embedErr != nil {
				slog.Warn("chunk embedding failed, dropping chunk", slog.Int("index", i), slog.String("error", embedErr.Error()))
				continue
			}
			vectors[i] = v
		}
	}

	rows := make([]vectorstore.Row, 0, len(chunks))
	for i, c := range chunks {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		rows = append(rows, vectorstore.Row{
			ID:          c.ID,
			Path:        c.Path,
			Text:        c.Text,
			Vector:      vectors[i],
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			ContentHash: c.ContentHash,
		})
	}
	return vectors, rows
}
