// Package main provides codesearchd, a single-purpose MCP server binary:
// point it at a project and it indexes (if needed) and serves over
// stdio, with no subcommand tree to parse. codesearch serve covers the
// same operation for callers that already have the full CLI on PATH;
// this binary exists for MCP client configs that just want one fixed
// command to exec.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codesearch/engine/internal/embedder"
	"github.com/codesearch/engine/internal/indexlifecycle"
	"github.com/codesearch/engine/internal/logging"
	"github.com/codesearch/engine/internal/mcpserver"
	"github.com/codesearch/engine/internal/tools"
	"github.com/codesearch/engine/pkg/version"
)

const indexDirName = ".codesearch"

func main() {
	projectFlag := flag.String("project", "", "project root to index and serve (default: detected from cwd)")
	flag.Parse()

	if err := run(*projectFlag); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(projectFlag string) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	ctx := context.Background()
	t, err := prepareTools(ctx, projectFlag)
	if err != nil {
		return err
	}

	server := mcpserver.New(t, version.Version)
	return server.Serve(ctx)
}

// prepareTools resolves the project root (explicit flag, or an upward
// .git walk from cwd) and builds the index on first run.
func prepareTools(ctx context.Context, projectFlag string) (*tools.Tools, error) {
	root := projectFlag
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root, err = indexlifecycle.DetectProjectRoot(cwd)
		if err != nil {
			root = cwd
		}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	indexDir := filepath.Join(root, indexDirName)
	t := &tools.Tools{
		Paths:        indexlifecycle.Paths{ProjectRoot: root, IndexDir: indexDir},
		IndexesRoot:  root,
		CodeEmbedder: embedder.New(384, "hash-384"),
		DocsEmbedder: embedder.New(384, "hash-384"),
	}

	status, err := t.GetIndexStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to check index status: %w", err)
	}
	if status.Status == indexlifecycle.StatusNotFound {
		if _, err := t.CreateIndex(ctx, true, nil); err != nil {
			return nil, fmt.Errorf("initial indexing failed: %w", err)
		}
	}
	return t, nil
}
