// Package mcpserver wires internal/tools' transport-agnostic handlers
// into an MCP server, mirroring the teacher's internal/mcp/server.go
// split between a typed mcpXHandler (SDK glue: schema-bound input
// struct in, *mcp.CallToolResult/output struct/error out) and the
// business logic it calls straight into internal/tools.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codesearch/engine/internal/engineerr"
	"github.com/codesearch/engine/internal/filesummary"
	"github.com/codesearch/engine/internal/hybridsearch"
	"github.com/codesearch/engine/internal/tools"
)

const serverName = "codesearch"

// Server bridges an MCP client to the engine's ten tools (spec.md §6).
type Server struct {
	mcp    *mcp.Server
	tools  *tools.Tools
	logger *slog.Logger
}

// New constructs a Server over t and registers every tool. version is
// reported as the server implementation version.
func New(t *tools.Tools, version string) *Server {
	s := &Server{
		tools:  t,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server, for callers that need
// to attach additional transports or resources.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
	} else {
		s.logger.Info("MCP server stopped gracefully")
	}
	return err
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_index",
		Description: "Builds a fresh semantic+keyword index for the project at the configured root. Destructive if an index already exists there; requires confirm:true.",
	}, s.mcpCreateIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex_project",
		Description: "Rebuilds the project's index from scratch, discarding the existing one. Requires confirm:true.",
	}, s.mcpReindexProject)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_index",
		Description: "Deletes the project's on-disk index directory. Requires confirm:true.",
	}, s.mcpDeleteIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex_file",
		Description: "Reindexes a single file in place, without rebuilding the whole project. No confirmation needed.",
	}, s.mcpReindexFile)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Reports whether the index is ready, indexing, or failed, plus file/chunk counts and storage size.",
	}, s.mcpGetIndexStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid semantic+keyword search over the code corpus. Prefer this over grep for \"what implements X\" questions.",
	}, s.mcpSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_docs",
		Description: "Hybrid semantic+keyword search over the documentation corpus (README, design docs, guides).",
	}, s.mcpSearchDocs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_by_path",
		Description: "Lists indexed file paths matching a glob pattern, e.g. \"**/*_test.go\".",
	}, s.mcpSearchByPath)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_file_summary",
		Description: "Returns a language-agnostic summary of a file's top-level symbols and approximate cyclomatic complexity.",
	}, s.mcpGetFileSummary)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_config",
		Description: "Returns the project's index paths and current include/exclude/size/strategy configuration.",
	}, s.mcpGetConfig)

	s.logger.Info("MCP tools registered", slog.Int("count", 10))
}

// --- create_index / reindex_project / delete_index -----------------

// ConfirmInput is the shared input shape for the three confirmation-
// gated mutation tools. The tool surface's input contract is `{}` at
// the spec level ("transport is out of scope" for how confirmation is
// obtained); this server resolves that Open Question by requiring the
// calling client to pass confirm:true once it has obtained the user's
// go-ahead, matching the spec's "no side effects when confirmation is
// denied" rule literally rather than inventing an out-of-band prompt
// protocol the MCP stdio transport has no room for.
type ConfirmInput struct {
	Confirm bool `json:"confirm,omitempty" jsonschema:"must be true to proceed; false or omitted cancels with no side effects"`
}

// IndexMutationOutput is create_index/reindex_project's output shape.
type IndexMutationOutput struct {
	Status        string `json:"status"`
	ProjectPath   string `json:"projectPath,omitempty"`
	FilesIndexed  int    `json:"filesIndexed,omitempty"`
	ChunksCreated int    `json:"chunksCreated,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
}

func (s *Server) mcpCreateIndex(ctx context.Context, _ *mcp.CallToolRequest, in ConfirmInput) (*mcp.CallToolResult, IndexMutationOutput, error) {
	out, err := s.tools.CreateIndex(ctx, in.Confirm, nil)
	if err != nil {
		return nil, IndexMutationOutput{}, MapError(err)
	}
	return nil, toMutationOutput(out), nil
}

func (s *Server) mcpReindexProject(ctx context.Context, _ *mcp.CallToolRequest, in ConfirmInput) (*mcp.CallToolResult, IndexMutationOutput, error) {
	out, err := s.tools.ReindexProject(ctx, in.Confirm, nil)
	if err != nil {
		return nil, IndexMutationOutput{}, MapError(err)
	}
	return nil, toMutationOutput(out), nil
}

func toMutationOutput(out tools.IndexMutationOutput) IndexMutationOutput {
	return IndexMutationOutput{
		Status: out.Status, ProjectPath: out.ProjectPath,
		FilesIndexed: out.FilesIndexed, ChunksCreated: out.ChunksCreated,
		DurationMs: out.Duration.Milliseconds(),
	}
}

// DeleteIndexOutput is delete_index's output shape.
type DeleteIndexOutput struct {
	Status      string `json:"status"`
	ProjectPath string `json:"projectPath,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (s *Server) mcpDeleteIndex(_ context.Context, _ *mcp.CallToolRequest, in ConfirmInput) (*mcp.CallToolResult, DeleteIndexOutput, error) {
	out := s.tools.DeleteIndex(in.Confirm, nil, nil)
	return nil, DeleteIndexOutput{Status: out.Status, ProjectPath: out.ProjectPath, Message: out.Message}, nil
}

// --- reindex_file ----------------------------------------------------

// ReindexFileInput is reindex_file's input shape.
type ReindexFileInput struct {
	Path string `json:"path" jsonschema:"project-relative path of the file to reindex"`
}

// ReindexFileOutput is reindex_file's output shape.
type ReindexFileOutput struct {
	Status        string `json:"status"`
	Path          string `json:"path"`
	ChunksCreated int    `json:"chunksCreated,omitempty"`
	Message       string `json:"message,omitempty"`
}

func (s *Server) mcpReindexFile(ctx context.Context, _ *mcp.CallToolRequest, in ReindexFileInput) (*mcp.CallToolResult, ReindexFileOutput, error) {
	if in.Path == "" {
		return nil, ReindexFileOutput{}, MapError(engineerr.New(engineerr.InvalidPath, "path is required"))
	}
	out := s.tools.ReindexFile(ctx, in.Path)
	return nil, ReindexFileOutput{Status: out.Status, Path: out.Path, ChunksCreated: out.ChunksCreated, Message: out.Message}, nil
}

// --- get_index_status --------------------------------------------------

// IndexStatusInput takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput is get_index_status's output shape.
type IndexStatusOutput struct {
	Status           string `json:"status"`
	ProjectPath      string `json:"projectPath,omitempty"`
	TotalFiles       int    `json:"totalFiles,omitempty"`
	TotalChunks      int    `json:"totalChunks,omitempty"`
	LastUpdated      string `json:"lastUpdated,omitempty"`
	StorageSize      int64  `json:"storageSize,omitempty"`
	FailedEmbeddings int    `json:"failedEmbeddings,omitempty"`
	IndexingProgress string `json:"indexingProgress,omitempty"`
	Warning          string `json:"warning,omitempty"`
}

func (s *Server) mcpGetIndexStatus(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	status, err := s.tools.GetIndexStatus()
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	out := IndexStatusOutput{
		Status: string(status.Status), ProjectPath: status.ProjectPath,
		TotalFiles: status.TotalFiles, TotalChunks: status.TotalChunks,
		StorageSize: status.StorageSize, FailedEmbeddings: status.FailedEmbeddings,
		IndexingProgress: status.IndexingProgress, Warning: status.Warning,
	}
	if status.LastUpdated != nil {
		out.LastUpdated = status.LastUpdated.Format("2006-01-02T15:04:05Z07:00")
	}
	return nil, out, nil
}

// --- search_code / search_docs ---------------------------------------

// SearchInput is the shared input shape for search_code/search_docs.
type SearchInput struct {
	Query   string  `json:"query" jsonschema:"the search query, 1..1000 characters"`
	TopK    int     `json:"top_k,omitempty" jsonschema:"number of results to return, 1..50, default 10"`
	Compact bool    `json:"compact,omitempty" jsonschema:"return the compact r/n/ms/w envelope instead of the verbose one"`
	Mode    string  `json:"mode,omitempty" jsonschema:"hybrid (default), vector, or fts"`
	Alpha   float64 `json:"alpha,omitempty" jsonschema:"vector-leg weight in [0,1] for hybrid mode, default 0.6"`
}

// SearchOutput is the verbose search_code/search_docs output shape.
type SearchOutput struct {
	Results []resultItem `json:"results"`
	Total   int          `json:"totalCount"`
	Ms      int64        `json:"durationMs"`
	Warning string       `json:"warning,omitempty"`
}

type resultItem struct {
	Path      string  `json:"path"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// CompactSearchOutput is the compact r/n/ms/w envelope variant.
type CompactSearchOutput struct {
	R  []compactItem `json:"r"`
	N  int           `json:"n"`
	Ms int64         `json:"ms"`
	W  string        `json:"w,omitempty"`
}

type compactItem struct {
	L     string  `json:"l"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// mcpSearchCode and mcpSearchDocs return `any` rather than a fixed
// struct because in.Compact switches the wire shape between
// SearchOutput and CompactSearchOutput at request time (spec.md §6);
// the MCP SDK accepts any JSON-marshalable output type parameter, so
// there is no static schema to pick between the two up front.
func (s *Server) mcpSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	out, err := s.runSearch(ctx, in, false)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpSearchDocs(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	out, err := s.runSearch(ctx, in, true)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) runSearch(ctx context.Context, in SearchInput, docs bool) (any, error) {
	req := tools.SearchInput{
		Query: in.Query, TopK: in.TopK, Compact: in.Compact,
		Mode: hybridsearch.Mode(in.Mode), Alpha: in.Alpha,
	}
	var (
		err error
		res tools.SearchOutput
	)
	if docs {
		res, err = s.tools.SearchDocs(ctx, req)
	} else {
		res, err = s.tools.SearchCode(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if in.Compact {
		items := make([]compactItem, len(res.Comp.R))
		for i, r := range res.Comp.R {
			items[i] = compactItem{L: r.L, Score: r.Score, Text: r.Text}
		}
		return CompactSearchOutput{R: items, N: res.Comp.N, Ms: res.Comp.Ms, W: res.Comp.W}, nil
	}

	items := make([]resultItem, len(res.Std.Results))
	for i, r := range res.Std.Results {
		items[i] = resultItem{Path: r.Path, StartLine: r.StartLine, EndLine: r.EndLine, Text: r.Text, Score: r.Score}
	}
	return SearchOutput{Results: items, Total: res.Std.TotalCount, Ms: res.Std.DurationMs, Warning: res.Std.Warning}, nil
}

// --- search_by_path ---------------------------------------------------

// SearchByPathInput is search_by_path's input shape.
type SearchByPathInput struct {
	Pattern string `json:"pattern" jsonschema:"glob pattern to match indexed paths against, 1..200 characters"`
	Limit   int    `json:"limit,omitempty" jsonschema:"max matches to return, 1..100, default 20"`
}

// SearchByPathOutput is search_by_path's output shape.
type SearchByPathOutput struct {
	Matches      []string `json:"matches"`
	TotalMatches int      `json:"totalMatches"`
}

func (s *Server) mcpSearchByPath(_ context.Context, _ *mcp.CallToolRequest, in SearchByPathInput) (*mcp.CallToolResult, SearchByPathOutput, error) {
	out, err := s.tools.SearchByPath(in.Pattern, in.Limit)
	if err != nil {
		return nil, SearchByPathOutput{}, MapError(err)
	}
	return nil, SearchByPathOutput{Matches: out.Matches, TotalMatches: out.TotalMatches}, nil
}

// --- get_file_summary --------------------------------------------------

// GetFileSummaryInput is get_file_summary's input shape.
type GetFileSummaryInput struct {
	Path              string `json:"path" jsonschema:"project-relative path of the file to summarize"`
	IncludeComplexity *bool  `json:"includeComplexity,omitempty" jsonschema:"include an approximate cyclomatic complexity score, default true"`
	IncludeDocstrings *bool  `json:"includeDocstrings,omitempty" jsonschema:"attach each symbol's preceding comment block, default true"`
}

func (s *Server) mcpGetFileSummary(_ context.Context, _ *mcp.CallToolRequest, in GetFileSummaryInput) (*mcp.CallToolResult, filesummary.Summary, error) {
	includeComplexity := boolOr(in.IncludeComplexity, true)
	includeDocstrings := boolOr(in.IncludeDocstrings, true)
	summary, err := s.tools.GetFileSummary(in.Path, includeComplexity, includeDocstrings)
	if err != nil {
		return nil, filesummary.Summary{}, MapError(err)
	}
	return nil, summary, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// --- get_config ----------------------------------------------------

// GetConfigInput takes no parameters.
type GetConfigInput struct{}

// GetConfigOutput is get_config's output shape.
type GetConfigOutput struct {
	ProjectPath      string   `json:"projectPath"`
	IndexDir         string   `json:"indexDir"`
	Include          []string `json:"include"`
	Exclude          []string `json:"exclude"`
	RespectGitignore bool     `json:"respectGitignore"`
	MaxFileSize      string   `json:"maxFileSize"`
	MaxFiles         int      `json:"maxFiles"`
	IndexingStrategy string   `json:"indexingStrategy"`
}

func (s *Server) mcpGetConfig(_ context.Context, _ *mcp.CallToolRequest, _ GetConfigInput) (*mcp.CallToolResult, GetConfigOutput, error) {
	out := s.tools.GetConfig()
	return nil, GetConfigOutput{
		ProjectPath: out.ProjectPath, IndexDir: out.IndexDir,
		Include: out.Config.Include, Exclude: out.Config.Exclude,
		RespectGitignore: out.Config.RespectGitignore, MaxFileSize: out.Config.MaxFileSize,
		MaxFiles: out.Config.MaxFiles, IndexingStrategy: string(out.Config.IndexingStrategy),
	}, nil
}
