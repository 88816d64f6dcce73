// Package indexlifecycle implements the Index Lifecycle of spec.md
// §4.13: create, reindex, delete, and status, each an end-to-end
// orchestration over the on-disk stores plus progress-event emission.
// Grounded on the teacher's internal/index/runner.go (phased indexing
// run with progress callbacks) and internal/config.FindProjectRoot
// (upward marker search), generalized from the teacher's single
// bundled-dependency Runner to this engine's per-store packages.
package indexlifecycle

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codesearch/engine/internal/atomicstore"
	"github.com/codesearch/engine/internal/chunker"
	"github.com/codesearch/engine/internal/concurrency"
	"github.com/codesearch/engine/internal/docsindex"
	"github.com/codesearch/engine/internal/embedder"
	"github.com/codesearch/engine/internal/engineerr"
	"github.com/codesearch/engine/internal/fingerprint"
	"github.com/codesearch/engine/internal/fulltext"
	"github.com/codesearch/engine/internal/gitignore"
	"github.com/codesearch/engine/internal/idxconfig"
	"github.com/codesearch/engine/internal/metastore"
	"github.com/codesearch/engine/internal/pathsafe"
	"github.com/codesearch/engine/internal/policy"
	"github.com/codesearch/engine/internal/vectorstore"
)

// Bounded-walk limits for project enumeration, per spec.md §5 "bounded
// globs": directory walks stop at depth 20, yield at most 100,000
// entries, and run for at most 30s wall-clock.
const (
	maxWalkDepth    = 20
	maxWalkEntries  = 100_000
	maxWalkDuration = 30 * time.Second
)

// docsExtensions routes files to the docs corpus (docsindex + docs
// vector store) instead of the code corpus. Everything else policy
// accepts is treated as code. Not specified verbatim by spec.md — an
// Open Question resolution recorded in DESIGN.md.
var docsExtensions = map[string]bool{
	".md": true, ".mdx": true, ".markdown": true,
	".txt": true, ".rst": true, ".adoc": true,
}

func isDocsPath(relPath string) bool {
	return docsExtensions[strings.ToLower(filepath.Ext(relPath))]
}

// Phase names progress events are grouped under.
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseStoring   Phase = "storing"
)

// ProgressEvent is emitted at phase boundaries during Create/Reindex.
type ProgressEvent struct {
	Phase       Phase
	Current     int
	Total       int
	CurrentFile string
}

// ProgressFunc receives progress events; nil is a valid no-op sink.
type ProgressFunc func(ProgressEvent)

func emit(fn ProgressFunc, e ProgressEvent) {
	if fn != nil {
		fn(e)
	}
}

// Paths locates every on-disk artifact one project's index occupies.
type Paths struct {
	ProjectRoot string
	IndexDir    string
}

func configPath(p Paths) string          { return filepath.Join(p.IndexDir, "config.json") }
func metadataPath(p Paths) string        { return filepath.Join(p.IndexDir, "metadata.json") }
func fingerprintPath(p Paths) string     { return filepath.Join(p.IndexDir, "fingerprints.json") }
func docsFingerprintPath(p Paths) string { return filepath.Join(p.IndexDir, "docs-fingerprints.json") }
func dirtyFilesPath(p Paths) string      { return filepath.Join(p.IndexDir, "dirty-files.json") }
func vectorStorePath(p Paths) string {
	return filepath.Join(p.IndexDir, "vector-store", "graph.bin")
}
func docsVectorStorePath(p Paths) string {
	return filepath.Join(p.IndexDir, "docs-vector-store", "graph.bin")
}
func ftsIndexPath(p Paths) string  { return filepath.Join(p.IndexDir, "fts.sqlite") }
func docsIndexPath(p Paths) string { return filepath.Join(p.IndexDir, "docs-index") }

// DetectProjectRoot walks upward from startDir looking for a ".git"
// directory, falling back to startDir itself if none is found before
// reaching the filesystem root.
func DetectProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", engineerr.Wrap(engineerr.ProjectNotFound, "could not resolve starting directory", err)
	}

	dir := abs
	for {
		if info, statErr := os.Stat(filepath.Join(dir, ".git")); statErr == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// CreateOptions configures one Create/Reindex run.
type CreateOptions struct {
	Paths        Paths
	CodeEmbedder embedder.Provider
	DocsEmbedder embedder.Provider
	Progress     ProgressFunc
}

// Result reports the outcome of a Create or Reindex run.
type Result struct {
	FilesIndexed  int
	ChunksCreated int
	Duration      time.Duration
}

type candidate struct {
	relPath string
	absPath string
	size    int64
}

// enumerate performs a bounded walk of root, returning every regular
// file the policy accepts.
func enumerate(root string, p *policy.Policy) ([]candidate, error) {
	deadline := time.Now().Add(maxWalkDuration)
	var out []candidate
	entries := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint: keep walking past unreadable entries
		}
		if time.Now().After(deadline) {
			return filepath.SkipAll
		}
		entries++
		if entries > maxWalkEntries {
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		depth := strings.Count(rel, "/") + 1
		if depth > maxWalkDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		decision := p.Evaluate(policy.Candidate{RelPath: rel, AbsPath: path, SizeBytes: info.Size()})
		if !decision.ShouldIndex {
			return nil
		}
		out = append(out, candidate{relPath: rel, absPath: path, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IndexCorrupt, "could not enumerate project files", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].relPath < out[j].relPath })
	return out, nil
}

// Create builds a fresh index from scratch (or rebuilds over an
// existing one), following spec.md §4.13's phase sequence.
func Create(ctx context.Context, opts CreateOptions) (Result, error) {
	started := time.Now()
	release, err := concurrency.Global().Acquire(ctx, opts.Paths.ProjectRoot)
	if err != nil {
		return Result{}, err
	}
	defer release()

	meta := metastore.New(metadataPath(opts.Paths))
	if err := meta.Load(); err != nil {
		return Result{}, err
	}
	if _, exists := meta.Get(); !exists {
		meta.Set(metastore.Metadata{ProjectPath: opts.Paths.ProjectRoot})
	}

	cfgPath := configPath(opts.Paths)
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		seeded := idxconfig.DefaultWithGlobalSettings(idxconfig.LoadGlobalSettings())
		if err := idxconfig.Save(cfgPath, seeded); err != nil {
			return Result{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not seed config", err)
		}
	}
	cfg := idxconfig.Load(cfgPath)

	result, buildErr := build(ctx, opts, cfg, meta)
	if buildErr != nil {
		meta.MarkFailed(buildErr.Error())
		_ = meta.Save()
		return Result{}, buildErr
	}

	now := time.Now()
	m, _ := meta.Get()
	m.LastFullIndex = &now
	meta.Set(m)
	meta.MarkComplete()
	if err := meta.Save(); err != nil {
		return Result{}, err
	}

	result.Duration = time.Since(started)
	return result, nil
}

func build(ctx context.Context, opts CreateOptions, cfg *idxconfig.Config, meta *metastore.Store) (Result, error) {
	gi, err := gitignore.LoadFromProject(opts.Paths.ProjectRoot)
	if err != nil {
		gi = gitignore.New()
	}
	if !cfg.RespectGitignore {
		gi = gitignore.New()
	}
	pol := policy.New(cfg, gi)

	emit(opts.Progress, ProgressEvent{Phase: PhaseScanning})
	candidates, err := enumerate(opts.Paths.ProjectRoot, pol)
	if err != nil {
		return Result{}, err
	}
	meta.MarkInProgress(len(candidates), time.Now())
	_ = meta.Save()

	var codeFiles, docsFiles []candidate
	for _, c := range candidates {
		if isDocsPath(c.relPath) {
			docsFiles = append(docsFiles, c)
		} else {
			codeFiles = append(codeFiles, c)
		}
	}

	codeChunks, err := chunkAll(opts.Progress, codeFiles)
	if err != nil {
		return Result{}, err
	}
	docsChunks, err := chunkAll(opts.Progress, docsFiles)
	if err != nil {
		return Result{}, err
	}

	codeCount, err := storeCorpus(ctx, opts.Progress, corpusParams{
		chunks:      codeChunks,
		emb:         opts.CodeEmbedder,
		vectorPath:  vectorStorePath(opts.Paths),
		vectorDim:   opts.CodeEmbedder.Dimensions(),
		ftsPath:     ftsIndexPath(opts.Paths),
		fingerprint: fingerprintPath(opts.Paths),
		isDocs:      false,
	})
	if err != nil {
		return Result{}, err
	}

	docsCount, err := storeCorpus(ctx, opts.Progress, corpusParams{
		chunks:      docsChunks,
		emb:         opts.DocsEmbedder,
		vectorPath:  docsVectorStorePath(opts.Paths),
		vectorDim:   opts.DocsEmbedder.Dimensions(),
		docsPath:    docsIndexPath(opts.Paths),
		fingerprint: docsFingerprintPath(opts.Paths),
		isDocs:      true,
	})
	if err != nil {
		return Result{}, err
	}

	chunksCreated := codeCount + docsCount

	m, _ := meta.Get()
	m.Stats.TotalFiles = len(candidates)
	m.Stats.TotalChunks = chunksCreated
	m.EmbeddingModels = metastore.EmbeddingModels{
		CodeModelName:      opts.CodeEmbedder.ModelName(),
		CodeModelDimension: opts.CodeEmbedder.Dimensions(),
		DocsModelName:      opts.DocsEmbedder.ModelName(),
		DocsModelDimension: opts.DocsEmbedder.Dimensions(),
	}
	if size, err := vectorstore.GetStorageSize(vectorStorePath(opts.Paths)); err == nil {
		m.Stats.StorageBytes += size
	}
	if size, err := vectorstore.GetStorageSize(docsVectorStorePath(opts.Paths)); err == nil {
		m.Stats.StorageBytes += size
	}
	meta.Set(m)

	return Result{FilesIndexed: len(candidates), ChunksCreated: chunksCreated}, nil
}

func chunkAll(progress ProgressFunc, files []candidate) ([]chunker.Chunk, error) {
	var all []chunker.Chunk
	for i, c := range files {
		emit(progress, ProgressEvent{Phase: PhaseChunking, Current: i + 1, Total: len(files), CurrentFile: c.relPath})
		content, err := os.ReadFile(c.absPath)
		if err != nil {
			// A per-file read failure is logged and the file skipped, not
			// fatal (spec.md §7); the skip is not counted in the result.
			slog.Warn("skipping unreadable file", slog.String("path", c.relPath), slog.String("error", err.Error()))
			continue
		}
		all = append(all, chunker.Chunk(c.relPath, content)...)
	}
	return all, nil
}

type corpusParams struct {
	chunks      []chunker.Chunk
	emb         embedder.Provider
	vectorPath  string
	vectorDim   int
	ftsPath     string
	docsPath    string
	fingerprint string
	isDocs      bool
}

// storeCorpus embeds and persists one corpus (code or docs) across its
// vector store, full-text store, and fingerprint store.
func storeCorpus(ctx context.Context, progress ProgressFunc, p corpusParams) (int, error) {
	if len(p.chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(p.chunks))
	for i, c := range p.chunks {
		texts[i] = c.Text
	}
	emit(progress, ProgressEvent{Phase: PhaseEmbedding, Total: len(texts)})
	vectors, err := embedBatchWithFallback(ctx, p.emb, texts)
	if err != nil {
		return 0, err
	}

	emit(progress, ProgressEvent{Phase: PhaseStoring, Total: len(p.chunks)})

	vec, err := vectorstore.Open(p.vectorPath, vectorstore.DefaultConfig(p.vectorDim))
	if err != nil {
		return 0, engineerr.Wrap(engineerr.IndexCorrupt, "could not open vector store", err)
	}
	defer vec.Close()

	rows := make([]vectorstore.Row, 0, len(p.chunks))
	ingestTexts := make(map[string]string, len(p.chunks))
	fp := fingerprint.New(p.fingerprint)
	if err := fp.Load(); err != nil {
		return 0, err
	}
	seenFiles := make(map[string]struct{})

	for i, c := range p.chunks {
		if vectors[i] == nil {
			continue
		}
		rows = append(rows, vectorstore.Row{
			ID: c.ID, Path: c.Path, Text: c.Text, Vector: vectors[i],
			StartLine: c.StartLine, EndLine: c.EndLine, ContentHash: c.ContentHash,
		})
		ingestTexts[c.ID] = c.Text
		seenFiles[c.Path] = struct{}{}
	}
	if len(rows) > 0 {
		if err := vec.InsertChunks(ctx, rows); err != nil {
			return 0, engineerr.Wrap(engineerr.IndexCorrupt, "could not insert chunks", err)
		}
	}
	if err := vec.Save(p.vectorPath); err != nil {
		return 0, engineerr.Wrap(engineerr.IndexCorrupt, "could not persist vector store", err)
	}

	if p.isDocs {
		docs, err := docsindex.Open(p.docsPath)
		if err != nil {
			return 0, err
		}
		defer docs.Close()
		if err := docs.Ingest(ctx, ingestTexts); err != nil {
			return 0, err
		}
	} else {
		fts, err := fulltext.Open(p.ftsPath)
		if err != nil {
			return 0, err
		}
		defer fts.Close()
		if err := fts.Ingest(ctx, ingestTexts); err != nil {
			return 0, err
		}
	}

	for relPath := range seenFiles {
		fp.Set(relPath, fingerprintForFile(p.chunks, relPath))
	}
	if err := fp.Save(); err != nil {
		return 0, err
	}

	return len(rows), nil
}

// fingerprintForFile derives a whole-file content hash from its
// chunks' content hashes, avoiding a second filesystem read.
func fingerprintForFile(chunks []chunker.Chunk, relPath string) string {
	var b strings.Builder
	for _, c := range chunks {
		if c.Path == relPath {
			b.WriteString(c.ContentHash)
		}
	}
	return fingerprint.HashBytes([]byte(b.String()))
}

func embedBatchWithFallback(ctx context.Context, emb embedder.Provider, texts []string) ([][]float32, error) {
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		v, embedErr := emb.Embed(ctx, text)
		if embedErr != nil {
			continue
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Reindex preserves config.json, deletes the vector stores,
// fingerprints, and metadata, then runs Create from scratch.
func Reindex(ctx context.Context, opts CreateOptions) (Result, error) {
	for _, path := range []string{
		metadataPath(opts.Paths),
		fingerprintPath(opts.Paths),
		docsFingerprintPath(opts.Paths),
		dirtyFilesPath(opts.Paths),
	} {
		_ = os.Remove(path)
	}
	_ = os.RemoveAll(filepath.Dir(vectorStorePath(opts.Paths)))
	_ = os.RemoveAll(filepath.Dir(docsVectorStorePath(opts.Paths)))
	_ = os.Remove(ftsIndexPath(opts.Paths))
	_ = os.RemoveAll(docsIndexPath(opts.Paths))

	return Create(ctx, opts)
}

// DeleteOptions configures a Delete run.
type DeleteOptions struct {
	Paths       Paths
	IndexesRoot string
	StopWatcher func() error
	CloseStores func() error
}

// DeleteResult reports the outcome of a Delete run.
type DeleteResult struct {
	Found    bool
	Warnings []string
}

// Delete removes a project's index directory, calling optional
// teardown callbacks first and tolerating partial failures by
// accumulating warnings rather than aborting.
func Delete(opts DeleteOptions) DeleteResult {
	var warnings []string

	meta := metastore.New(metadataPath(opts.Paths))
	if err := meta.Load(); err != nil {
		warnings = append(warnings, err.Error())
	}
	if _, exists := meta.Get(); !exists {
		return DeleteResult{Found: false}
	}

	if opts.StopWatcher != nil {
		if err := opts.StopWatcher(); err != nil {
			warnings = append(warnings, "stop watcher: "+err.Error())
		}
	}
	if opts.CloseStores != nil {
		if err := opts.CloseStores(); err != nil {
			warnings = append(warnings, "close stores: "+err.Error())
		}
	}

	resolved, err := filepath.Abs(opts.Paths.IndexDir)
	if err != nil {
		warnings = append(warnings, err.Error())
		return DeleteResult{Found: true, Warnings: warnings}
	}
	root, err := filepath.Abs(opts.IndexesRoot)
	if err != nil {
		warnings = append(warnings, err.Error())
		return DeleteResult{Found: true, Warnings: warnings}
	}
	if !pathsafe.IsWithinDirectory(root, resolved) {
		warnings = append(warnings, "refusing to delete index directory outside the indexes root")
		return DeleteResult{Found: true, Warnings: warnings}
	}

	if err := os.RemoveAll(resolved); err != nil {
		warnings = append(warnings, err.Error())
	}

	return DeleteResult{Found: true, Warnings: warnings}
}

// Status is the reported state for get_index_status.
type Status string

const (
	StatusReady     Status = "ready"
	StatusIndexing  Status = "indexing"
	StatusNotFound  Status = "not_found"
	StatusFailed    Status = "failed"
)

// StatusResult reports get_index_status's output shape.
type StatusResult struct {
	Status           Status
	ProjectPath      string
	TotalFiles       int
	TotalChunks      int
	LastUpdated      *time.Time
	StorageSize      int64
	FailedEmbeddings int
	ProcessedFiles   int
	ExpectedFiles    int
	Warning          string
}

// GetStatus loads metadata and reports the index's current state.
func GetStatus(paths Paths) (StatusResult, error) {
	meta := metastore.New(metadataPath(paths))
	if err := meta.Load(); err != nil {
		return StatusResult{}, err
	}
	m, exists := meta.Get()
	if !exists {
		return StatusResult{Status: StatusNotFound}, nil
	}

	result := StatusResult{
		ProjectPath:      m.ProjectPath,
		TotalFiles:       m.Stats.TotalFiles,
		TotalChunks:      m.Stats.TotalChunks,
		StorageSize:      m.Stats.StorageBytes,
		FailedEmbeddings: m.Stats.FailedEmbeddings,
	}
	if m.LastIncrementalUpdate != nil {
		result.LastUpdated = m.LastIncrementalUpdate
	} else {
		result.LastUpdated = m.LastFullIndex
	}

	switch m.IndexingState.State {
	case metastore.StateInProgress:
		result.Status = StatusIndexing
		if m.IndexingState.ExpectedFiles != nil {
			result.ExpectedFiles = *m.IndexingState.ExpectedFiles
		}
		if m.IndexingState.ProcessedFiles != nil {
			result.ProcessedFiles = *m.IndexingState.ProcessedFiles
		}
	case metastore.StateFailed:
		result.Status = StatusFailed
		if m.IndexingState.ErrorMessage != nil {
			result.Warning = *m.IndexingState.ErrorMessage
		}
	default:
		result.Status = StatusReady
	}

	if size, err := atomicstore.DirSize(paths.IndexDir); err == nil {
		result.StorageSize = size
	}

	return result, nil
}
