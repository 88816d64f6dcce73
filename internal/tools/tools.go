// Package tools implements the ten transport-agnostic tool handlers of
// spec.md §6: create_index, reindex_project, delete_index, reindex_file,
// get_index_status, search_code, search_docs, search_by_path,
// get_file_summary, get_config. Each handler takes a plain Go struct and
// returns a plain Go struct; internal/mcpserver adapts these to the MCP
// wire format, mirroring the teacher's internal/mcp/server.go split
// between handleXTool (business logic) and mcpXHandler (SDK glue).
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codesearch/engine/internal/docsindex"
	"github.com/codesearch/engine/internal/embedder"
	"github.com/codesearch/engine/internal/engineerr"
	"github.com/codesearch/engine/internal/filesummary"
	"github.com/codesearch/engine/internal/fulltext"
	"github.com/codesearch/engine/internal/hybridsearch"
	"github.com/codesearch/engine/internal/idxconfig"
	"github.com/codesearch/engine/internal/indexlifecycle"
	"github.com/codesearch/engine/internal/metastore"
	"github.com/codesearch/engine/internal/modelcompat"
	"github.com/codesearch/engine/internal/pathsafe"
	"github.com/codesearch/engine/internal/queryexpand"
	"github.com/codesearch/engine/internal/resultproc"
	"github.com/codesearch/engine/internal/security"
	"github.com/codesearch/engine/internal/updater"
	"github.com/codesearch/engine/internal/vectorstore"
)

// Flusher is the subset of *strategy.Orchestrator a search call needs to
// drain a lazy dirty set before reading the stores, per spec.md §4.12's
// "flush-before-search" rule. nil is a valid no-op (eager-only setups).
type Flusher interface {
	Flush(ctx context.Context) error
}

// Tools bundles the dependencies every handler needs: where this
// project's index lives, which embedders back its two corpora, and the
// indexing-strategy orchestrator (if any) to flush before a search.
type Tools struct {
	Paths        indexlifecycle.Paths
	IndexesRoot  string
	CodeEmbedder embedder.Provider
	DocsEmbedder embedder.Provider
	Flush        Flusher
}

func (t *Tools) metadataPath() string { return filepath.Join(t.Paths.IndexDir, "metadata.json") }
func (t *Tools) configPath() string   { return filepath.Join(t.Paths.IndexDir, "config.json") }
func (t *Tools) codeVectorPath() string {
	return filepath.Join(t.Paths.IndexDir, "vector-store", "graph.bin")
}
func (t *Tools) docsVectorPath() string {
	return filepath.Join(t.Paths.IndexDir, "docs-vector-store", "graph.bin")
}
func (t *Tools) ftsPath() string  { return filepath.Join(t.Paths.IndexDir, "fts.sqlite") }
func (t *Tools) docsPath() string { return filepath.Join(t.Paths.IndexDir, "docs-index") }

// Status values shared across the confirmation-gated tools.
const (
	StatusSuccess   = "success"
	StatusCancelled = "cancelled"
	StatusNotFound  = "not_found"
	StatusError     = "error"
)

// IndexMutationOutput is the common shape of create_index/reindex_project.
type IndexMutationOutput struct {
	Status        string
	ProjectPath   string
	FilesIndexed  int
	ChunksCreated int
	Duration      time.Duration
}

// CreateIndex implements the create_index tool. confirmed must be true
// (the caller has already obtained user confirmation) or the call
// returns status:cancelled with no side effects, per spec.md §7.
func (t *Tools) CreateIndex(ctx context.Context, confirmed bool, progress indexlifecycle.ProgressFunc) (IndexMutationOutput, error) {
	if !confirmed {
		return IndexMutationOutput{Status: StatusCancelled}, nil
	}
	result, err := indexlifecycle.Create(ctx, indexlifecycle.CreateOptions{
		Paths:        t.Paths,
		CodeEmbedder: t.CodeEmbedder,
		DocsEmbedder: t.DocsEmbedder,
		Progress:     progress,
	})
	if err != nil {
		return IndexMutationOutput{}, err
	}
	return IndexMutationOutput{
		Status: StatusSuccess, ProjectPath: t.Paths.ProjectRoot,
		FilesIndexed: result.FilesIndexed, ChunksCreated: result.ChunksCreated, Duration: result.Duration,
	}, nil
}

// ReindexProject implements the reindex_project tool.
func (t *Tools) ReindexProject(ctx context.Context, confirmed bool, progress indexlifecycle.ProgressFunc) (IndexMutationOutput, error) {
	if !confirmed {
		return IndexMutationOutput{Status: StatusCancelled}, nil
	}
	result, err := indexlifecycle.Reindex(ctx, indexlifecycle.CreateOptions{
		Paths:        t.Paths,
		CodeEmbedder: t.CodeEmbedder,
		DocsEmbedder: t.DocsEmbedder,
		Progress:     progress,
	})
	if err != nil {
		return IndexMutationOutput{}, err
	}
	return IndexMutationOutput{
		Status: StatusSuccess, ProjectPath: t.Paths.ProjectRoot,
		FilesIndexed: result.FilesIndexed, ChunksCreated: result.ChunksCreated, Duration: result.Duration,
	}, nil
}

// DeleteIndexOutput is delete_index's result shape.
type DeleteIndexOutput struct {
	Status      string
	ProjectPath string
	Message     string
}

// DeleteIndex implements the delete_index tool.
func (t *Tools) DeleteIndex(confirmed bool, stopWatcher, closeStores func() error) DeleteIndexOutput {
	if !confirmed {
		return DeleteIndexOutput{Status: StatusCancelled}
	}
	modelWarn := t.modelWarning()
	result := indexlifecycle.Delete(indexlifecycle.DeleteOptions{
		Paths: t.Paths, IndexesRoot: t.IndexesRoot,
		StopWatcher: stopWatcher, CloseStores: closeStores,
	})
	if !result.Found {
		return DeleteIndexOutput{Status: StatusNotFound, ProjectPath: t.Paths.ProjectRoot}
	}
	msg := ""
	if len(result.Warnings) > 0 {
		msg = strings.Join(result.Warnings, "; ")
	}
	if modelWarn != "" {
		msg = appendWarning(msg, modelWarn)
	}
	return DeleteIndexOutput{Status: StatusSuccess, ProjectPath: t.Paths.ProjectRoot, Message: msg}
}

// ReindexFileOutput is reindex_file's result shape.
type ReindexFileOutput struct {
	Status        string
	Path          string
	ChunksCreated int
	Message       string
}

// ReindexFile implements the reindex_file tool; never confirmation-gated.
func (t *Tools) ReindexFile(ctx context.Context, relPath string) ReindexFileOutput {
	emb := t.CodeEmbedder
	if isDocsPath(relPath) {
		emb = t.DocsEmbedder
	}
	result, err := updater.ReindexFile(ctx, updater.Paths{
		ProjectRoot:  t.Paths.ProjectRoot,
		IndexDir:     t.Paths.IndexDir,
		VectorConfig: vectorstore.DefaultConfig(emb.Dimensions()),
	}, relPath, emb)
	if err != nil {
		return ReindexFileOutput{Status: StatusError, Path: relPath, Message: err.Error()}
	}
	return ReindexFileOutput{Status: StatusSuccess, Path: relPath, ChunksCreated: result.ChunksCreated}
}

var docsExtensions = map[string]bool{
	".md": true, ".mdx": true, ".markdown": true,
	".txt": true, ".rst": true, ".adoc": true,
}

func isDocsPath(relPath string) bool {
	return docsExtensions[strings.ToLower(filepath.Ext(relPath))]
}

// IndexStatusOutput is get_index_status's result shape.
type IndexStatusOutput struct {
	Status           indexlifecycle.Status
	ProjectPath      string
	TotalFiles       int
	TotalChunks      int
	LastUpdated      *time.Time
	StorageSize      int64
	FailedEmbeddings int
	IndexingProgress string
	Warning          string
}

// GetIndexStatus implements the get_index_status tool, demoting a model
// mismatch to a non-blocking warning per spec.md §4.14.
func (t *Tools) GetIndexStatus() (IndexStatusOutput, error) {
	status, err := indexlifecycle.GetStatus(t.Paths)
	if err != nil {
		return IndexStatusOutput{}, err
	}
	out := IndexStatusOutput{
		Status: status.Status, ProjectPath: status.ProjectPath,
		TotalFiles: status.TotalFiles, TotalChunks: status.TotalChunks,
		LastUpdated: status.LastUpdated, StorageSize: status.StorageSize,
		FailedEmbeddings: status.FailedEmbeddings, Warning: status.Warning,
	}
	if status.Status == indexlifecycle.StatusIndexing {
		out.IndexingProgress = formatProgress(status.ProcessedFiles, status.ExpectedFiles)
	}
	if status.Status == indexlifecycle.StatusReady {
		if warn := t.modelWarning(); warn != "" {
			out.Warning = warn
		}
		if warn := t.integrityWarning(); warn != "" {
			out.Warning = appendWarning(out.Warning, warn)
		}
	}
	return out, nil
}

func appendWarning(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + "; " + add
}

// integrityWarning runs the full-text store's integrity_check against
// the live database file, surfacing corruption as a warning rather than
// failing get_index_status outright, mirroring the demote-to-warning
// contract modelWarning already uses for model mismatches.
func (t *Tools) integrityWarning() string {
	ok, err := fulltext.CheckIntegrity(t.ftsPath())
	if err != nil || ok {
		return ""
	}
	return "full-text store failed integrity check; reindex to rebuild it"
}

func formatProgress(processed, expected int) string {
	if expected == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d files", processed, expected)
}

func (t *Tools) modelWarning() string {
	meta := metastore.New(t.metadataPath())
	if err := meta.Load(); err != nil {
		return ""
	}
	m, ok := meta.Get()
	if !ok {
		return ""
	}
	codeWarn := modelcompat.CheckOrWarn(m.EmbeddingModels, modelcompat.Code,
		modelcompat.Configured{ModelName: t.CodeEmbedder.ModelName(), Dimension: t.CodeEmbedder.Dimensions()})
	docsWarn := modelcompat.CheckOrWarn(m.EmbeddingModels, modelcompat.Docs,
		modelcompat.Configured{ModelName: t.DocsEmbedder.ModelName(), Dimension: t.DocsEmbedder.Dimensions()})
	switch {
	case codeWarn != "" && docsWarn != "":
		return codeWarn + "; " + docsWarn
	case codeWarn != "":
		return codeWarn
	default:
		return docsWarn
	}
}

// SearchInput is the shared request shape for search_code/search_docs.
type SearchInput struct {
	Query   string
	TopK    int
	Compact bool
	Mode    hybridsearch.Mode
	Alpha   float64
}

// SearchOutput is a transport-agnostic envelope carrying either the
// standard or compact result shape, selected by Compact at request time.
type SearchOutput struct {
	Compact bool
	Std     resultproc.Wrapper
	Comp    resultproc.CompactWrapper
}

// SearchCode implements the search_code tool: code-corpus hybrid search.
func (t *Tools) SearchCode(ctx context.Context, in SearchInput) (SearchOutput, error) {
	return t.search(ctx, in, false)
}

// SearchDocs implements the search_docs tool: docs-corpus hybrid search.
func (t *Tools) SearchDocs(ctx context.Context, in SearchInput) (SearchOutput, error) {
	return t.search(ctx, in, true)
}

func (t *Tools) search(ctx context.Context, in SearchInput, docs bool) (SearchOutput, error) {
	if in.Query == "" || len(in.Query) > 1000 {
		return SearchOutput{}, engineerr.New(engineerr.InvalidPath, "query must be 1..1000 characters")
	}
	if t.Flush != nil {
		if err := t.Flush.Flush(ctx); err != nil {
			return SearchOutput{}, err
		}
	}

	emb := t.CodeEmbedder
	corpus := modelcompat.Code
	vectorPath := t.codeVectorPath()
	if docs {
		emb = t.DocsEmbedder
		corpus = modelcompat.Docs
		vectorPath = t.docsVectorPath()
	}

	meta := metastore.New(t.metadataPath())
	if err := meta.Load(); err != nil {
		return SearchOutput{}, err
	}
	m, ok := meta.Get()
	if !ok {
		return SearchOutput{}, engineerr.New(engineerr.IndexNotFound, "index not found")
	}
	if err := modelcompat.Check(m.EmbeddingModels, corpus, modelcompat.Configured{
		ModelName: emb.ModelName(), Dimension: emb.Dimensions(),
	}); err != nil {
		return SearchOutput{}, err
	}

	vec, err := vectorstore.Open(vectorPath, vectorstore.DefaultConfig(emb.Dimensions()))
	if err != nil {
		return SearchOutput{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not open vector store", err)
	}
	defer vec.Close()

	start := time.Now()
	expanded := queryexpand.Expand(in.Query)
	queryVector, err := emb.Embed(ctx, expanded)
	if err != nil {
		return SearchOutput{}, engineerr.Wrap(engineerr.IndexCorrupt, "could not embed query", err)
	}

	mode, alpha := in.Mode, in.Alpha
	cfg := idxconfig.Load(t.configPath())
	if mode == "" && cfg.DefaultMode != "" {
		mode = hybridsearch.Mode(cfg.DefaultMode)
	}
	if alpha == 0 && cfg.DefaultAlpha > 0 {
		alpha = cfg.DefaultAlpha
	}

	req := hybridsearch.Request{
		Query: in.Query, QueryVector: queryVector,
		Mode: mode, Alpha: alpha, TopK: in.TopK,
	}

	var downgraded bool
	var results []hybridsearch.Result
	if docs {
		ds, err := docsindex.Open(t.docsPath())
		if err != nil {
			return SearchOutput{}, err
		}
		defer ds.Close()
		results, downgraded, err = searchDocsCorpus(ctx, vec, ds, req)
		if err != nil {
			return SearchOutput{}, err
		}
	} else {
		fs, err := fulltext.Open(t.ftsPath())
		if err != nil {
			return SearchOutput{}, err
		}
		defer fs.Close()
		results, downgraded, err = hybridsearch.Search(ctx, vec, fs, req)
		if err != nil {
			return SearchOutput{}, err
		}
	}
	var warning string
	if downgraded {
		warning = "full-text store unavailable; results downgraded to vector-only"
	}

	items := make([]resultproc.Item, len(results))
	for i, r := range results {
		items[i] = resultproc.Item{
			Path: r.Row.Path, StartLine: r.Row.StartLine, EndLine: r.Row.EndLine,
			Text: r.Row.Text, Score: r.Score,
		}
	}
	processed := resultproc.Process(items)
	durationMs := time.Since(start).Milliseconds()

	if in.Compact {
		return SearchOutput{Compact: true, Comp: resultproc.NewCompactWrapper(processed, durationMs, warning)}, nil
	}
	return SearchOutput{Std: resultproc.NewWrapper(processed, durationMs, warning)}, nil
}

// docsFTS adapts *docsindex.Store to hybridsearch.FullTextSearcher,
// since docsindex.Hit and fulltext.Hit are distinct, package-specific
// types with the same shape rather than a shared interface.
type docsFTS struct{ store *docsindex.Store }

func (d docsFTS) Search(ctx context.Context, queryString string, topK int) ([]fulltext.Hit, error) {
	hits, err := d.store.Search(ctx, queryString, topK)
	if err != nil {
		return nil, err
	}
	out := make([]fulltext.Hit, len(hits))
	for i, h := range hits {
		out[i] = fulltext.Hit{ID: h.ID, RawScore: h.RawScore}
	}
	return out, nil
}

func searchDocsCorpus(ctx context.Context, vec hybridsearch.VectorSearcher, ds *docsindex.Store, req hybridsearch.Request) ([]hybridsearch.Result, bool, error) {
	return hybridsearch.Search(ctx, vec, docsFTS{store: ds}, req)
}

// SearchByPathOutput is search_by_path's result shape.
type SearchByPathOutput struct {
	Matches     []string
	TotalMatches int
}

// SearchByPath implements the search_by_path tool: a glob match over
// every file path present in either vector store.
func (t *Tools) SearchByPath(pattern string, limit int) (SearchByPathOutput, error) {
	if pattern == "" || len(pattern) > 200 {
		return SearchByPathOutput{}, engineerr.New(engineerr.InvalidPath, "pattern must be 1..200 characters")
	}
	if !security.ValidatePattern(pattern) {
		return SearchByPathOutput{}, engineerr.New(engineerr.InvalidPattern, "pattern rejected as adversarial")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	paths := make(map[string]struct{})
	for _, vp := range []string{t.codeVectorPath(), t.docsVectorPath()} {
		vec, err := vectorstore.Open(vp, vectorstore.DefaultConfig(1))
		if err != nil {
			continue
		}
		for _, p := range vec.GetIndexedFiles() {
			paths[p] = struct{}{}
		}
		vec.Close()
	}

	var matches []string
	for p := range paths {
		if ok, _ := filepath.Match(pattern, p); ok {
			matches = append(matches, p)
		}
	}
	sort.Strings(matches)
	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return SearchByPathOutput{Matches: matches, TotalMatches: total}, nil
}

// GetFileSummary implements the get_file_summary tool.
func (t *Tools) GetFileSummary(relPath string, includeComplexity, includeDocstrings bool) (filesummary.Summary, error) {
	absPath, ok := pathsafe.SafeJoin(t.Paths.ProjectRoot, relPath)
	if !ok {
		return filesummary.Summary{}, engineerr.New(engineerr.InvalidPath, "path escapes project root")
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return filesummary.Summary{}, engineerr.Wrap(engineerr.FileNotFound, "could not read file", err)
	}
	return filesummary.Analyze(relPath, content, includeComplexity, includeDocstrings), nil
}

// GetConfigOutput is get_config's result shape.
type GetConfigOutput struct {
	ProjectPath string
	IndexDir    string
	Config      *idxconfig.Config
}

// GetConfig implements the get_config tool.
func (t *Tools) GetConfig() GetConfigOutput {
	return GetConfigOutput{
		ProjectPath: t.Paths.ProjectRoot,
		IndexDir:    t.Paths.IndexDir,
		Config:      idxconfig.Load(t.configPath()),
	}
}
