// Package cmd provides the CLI commands for codesearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codesearch/engine/internal/embedder"
	"github.com/codesearch/engine/internal/idxconfig"
	"github.com/codesearch/engine/internal/indexlifecycle"
	"github.com/codesearch/engine/internal/logging"
	"github.com/codesearch/engine/internal/tools"
	"github.com/codesearch/engine/pkg/version"
)

const indexDirName = ".codesearch"

// codeEmbeddingDims and docsEmbeddingDims size the two hash embedders
// this CLI wires by default. A real deployment would swap these for a
// model-backed embedder.Provider without touching anything downstream.
const (
	codeEmbeddingDims = 384
	docsEmbeddingDims = 384
)

// Debug logging flag, mirroring the teacher's --debug convention.
var debugMode bool

// NewRootCmd creates the root command for the codesearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "codesearch",
		Short:   "Local semantic and keyword search over a codebase",
		Version: version.Version,
		Long: `codesearch builds and queries a local hybrid (vector + keyword) index
over a project's source and documentation, entirely on disk with no
network dependency.

Run 'codesearch index' once in a project, then 'codesearch search
<query>' to query it. 'codesearch serve' exposes the same operations
to an MCP client such as an AI coding assistant.`,
	}

	cmd.SetVersionTemplate("codesearch version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging() func() {
	cfg := logging.DefaultConfig()
	if level := idxconfig.LoadGlobalSettings().LogLevel; level != "" {
		cfg.Level = level
	}
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// resolveProjectRoot returns the project root for the given path
// argument, defaulting to the current directory and walking upward
// for a .git marker when the argument is empty.
func resolveProjectRoot(arg string) (string, error) {
	if arg != "" {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := indexlifecycle.DetectProjectRoot(cwd)
	if err != nil {
		return cwd, nil
	}
	return root, nil
}

// buildTools wires a tools.Tools bundle for the project at root, using
// the default hash-based embedders. There is no background strategy
// orchestrator in the one-shot CLI path, so Flush is left nil.
func buildTools(root string) *tools.Tools {
	indexDir := filepath.Join(root, indexDirName)
	return &tools.Tools{
		Paths:        indexlifecycle.Paths{ProjectRoot: root, IndexDir: indexDir},
		IndexesRoot:  root,
		CodeEmbedder: embedder.New(codeEmbeddingDims, "hash-384"),
		DocsEmbedder: embedder.New(docsEmbeddingDims, "hash-384"),
	}
}

func requireIndex(ctx context.Context, t *tools.Tools) error {
	status, err := t.GetIndexStatus()
	if err != nil {
		return err
	}
	if status.Status == indexlifecycle.StatusNotFound {
		return fmt.Errorf("no index found in %s\nRun 'codesearch index' to create one", t.Paths.ProjectRoot)
	}
	return nil
}
