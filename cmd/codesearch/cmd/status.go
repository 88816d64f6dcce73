package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codesearch/engine/internal/output"
	"github.com/codesearch/engine/internal/tools"
)

// statusJSON is status's --json output shape.
type statusJSON struct {
	Status           string `json:"status"`
	ProjectPath      string `json:"projectPath"`
	TotalFiles       int    `json:"totalFiles"`
	TotalChunks      int    `json:"totalChunks"`
	StorageSize      int64  `json:"storageSize"`
	FailedEmbeddings int    `json:"failedEmbeddings"`
	IndexingProgress string `json:"indexingProgress,omitempty"`
	Warning          string `json:"warning,omitempty"`
}

func toStatusJSON(s tools.IndexStatusOutput) statusJSON {
	return statusJSON{
		Status: string(s.Status), ProjectPath: s.ProjectPath,
		TotalFiles: s.TotalFiles, TotalChunks: s.TotalChunks,
		StorageSize: s.StorageSize, FailedEmbeddings: s.FailedEmbeddings,
		IndexingProgress: s.IndexingProgress, Warning: s.Warning,
	}
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index: file and chunk counts,
last-updated time, storage size, and any embedding-model warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	root, err := resolveProjectRoot("")
	if err != nil {
		return fmt.Errorf("could not resolve project root: %w", err)
	}
	t := buildTools(root)

	status, err := t.GetIndexStatus()
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(toStatusJSON(status))
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("", fmt.Sprintf("project: %s", status.ProjectPath))
	out.Status("", fmt.Sprintf("status:  %s", status.Status))
	switch {
	case status.IndexingProgress != "":
		out.Status("", fmt.Sprintf("progress: %s", status.IndexingProgress))
	default:
		out.Status("", fmt.Sprintf("files:   %d", status.TotalFiles))
		out.Status("", fmt.Sprintf("chunks:  %d", status.TotalChunks))
		out.Status("", fmt.Sprintf("size:    %d bytes", status.StorageSize))
		if status.LastUpdated != nil {
			out.Status("", fmt.Sprintf("updated: %s", status.LastUpdated.Format("2006-01-02T15:04:05Z07:00")))
		}
	}
	if status.FailedEmbeddings > 0 {
		out.Warning(fmt.Sprintf("%d chunks failed to embed", status.FailedEmbeddings))
	}
	if status.Warning != "" {
		out.Warning(status.Warning)
	}
	return nil
}
