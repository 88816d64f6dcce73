package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codesearch/engine/internal/hybridsearch"
	"github.com/codesearch/engine/internal/output"
	"github.com/codesearch/engine/internal/resultproc"
	"github.com/codesearch/engine/internal/tools"
)

type searchOptions struct {
	limit  int
	docs   bool
	mode   string
	alpha  float64
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed project",
		Long: `Search the project's code (or documentation, with --docs) using hybrid
vector + keyword search with alpha-weighted score fusion.

Examples:
  codesearch search "parse a config file"
  codesearch search "installation instructions" --docs
  codesearch search "retry with backoff" --mode vector --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.docs, "docs", false, "Search the documentation corpus instead of code")
	cmd.Flags().StringVar(&opts.mode, "mode", "hybrid", "Search mode: hybrid, vector, or fts")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0.6, "Vector-leg weight in [0,1] for hybrid mode")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	cleanup := setupLogging()
	defer cleanup()

	root, err := resolveProjectRoot("")
	if err != nil {
		return fmt.Errorf("could not resolve project root: %w", err)
	}
	t := buildTools(root)
	ctx := cmd.Context()

	if err := requireIndex(ctx, t); err != nil {
		return err
	}

	req := tools.SearchInput{
		Query: query, TopK: opts.limit,
		Mode: hybridsearch.Mode(opts.mode), Alpha: opts.alpha,
	}

	var res tools.SearchOutput
	if opts.docs {
		res, err = t.SearchDocs(ctx, req)
	} else {
		res, err = t.SearchCode(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Std)
	}
	return renderSearchResults(cmd, query, res.Std)
}

func renderSearchResults(cmd *cobra.Command, query string, w resultproc.Wrapper) error {
	out := output.New(cmd.OutOrStdout())
	if len(w.Results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	out.Statusf("", "Found %d results for %q (%dms):", w.TotalCount, query, w.DurationMs)
	out.Newline()
	for i, r := range w.Results {
		out.Statusf("", "%d. %s:%d-%d (score: %.3f)", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
		for _, line := range firstLines(r.Text, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	if w.Warning != "" {
		out.Warning(w.Warning)
	}
	return nil
}

func firstLines(text string, n int) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
