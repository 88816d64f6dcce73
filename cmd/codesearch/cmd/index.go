package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codesearch/engine/internal/indexlifecycle"
	"github.com/codesearch/engine/internal/output"
	"github.com/codesearch/engine/internal/tools"
	"github.com/codesearch/engine/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or rebuild the index for a project",
		Long: `Build a fresh semantic+keyword index for the project at path (default:
the current project root). Use --force to discard and rebuild an
existing index from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pathArg string
			if len(args) > 0 {
				pathArg = args[0]
			}
			return runIndex(cmd, pathArg, force, noTUI)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the index even if one already exists")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Force plain text progress output")

	return cmd
}

func runIndex(cmd *cobra.Command, pathArg string, force, noTUI bool) error {
	cleanup := setupLogging()
	defer cleanup()

	root, err := resolveProjectRoot(pathArg)
	if err != nil {
		return fmt.Errorf("could not resolve project root: %w", err)
	}

	t := buildTools(root)
	ctx := cmd.Context()

	status, err := t.GetIndexStatus()
	if err != nil {
		return fmt.Errorf("failed to check index status: %w", err)
	}
	exists := status.Status != indexlifecycle.StatusNotFound

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI), ui.WithNoColor(ui.DetectNoColor()), ui.WithProjectDir(root)))
	if startErr := renderer.Start(ctx); startErr != nil {
		return startErr
	}
	defer func() { _ = renderer.Stop() }()

	progress := func(e indexlifecycle.ProgressEvent) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       phaseToStage(e.Phase),
			Current:     e.Current,
			Total:       e.Total,
			CurrentFile: e.CurrentFile,
		})
	}

	var result tools.IndexMutationOutput
	if exists && force {
		result, err = t.ReindexProject(ctx, true, progress)
	} else if exists {
		out := output.New(cmd.OutOrStdout())
		out.Status("", fmt.Sprintf("Index already exists for %s. Pass --force to rebuild.", root))
		return nil
	} else {
		result, err = t.CreateIndex(ctx, true, progress)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	renderer.Complete(ui.CompletionStats{
		Files:    result.FilesIndexed,
		Chunks:   result.ChunksCreated,
		Duration: result.Duration,
	})
	return nil
}

func phaseToStage(p indexlifecycle.Phase) ui.Stage {
	switch p {
	case indexlifecycle.PhaseScanning:
		return ui.StageScanning
	case indexlifecycle.PhaseChunking:
		return ui.StageChunking
	case indexlifecycle.PhaseEmbedding:
		return ui.StageEmbedding
	case indexlifecycle.PhaseStoring:
		return ui.StageIndexing
	default:
		return ui.StageScanning
	}
}
