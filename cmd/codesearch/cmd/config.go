package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codesearch/engine/internal/output"
)

func newConfigCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the project's index configuration",
		Long:  `Display the include/exclude globs, size limits, and indexing strategy in effect for the current project.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runConfig(cmd *cobra.Command, jsonOutput bool) error {
	root, err := resolveProjectRoot("")
	if err != nil {
		return fmt.Errorf("could not resolve project root: %w", err)
	}
	t := buildTools(root)
	out := t.GetConfig()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := output.New(cmd.OutOrStdout())
	w.Status("", fmt.Sprintf("project:           %s", out.ProjectPath))
	w.Status("", fmt.Sprintf("index dir:         %s", out.IndexDir))
	w.Status("", fmt.Sprintf("include:           %v", out.Config.Include))
	w.Status("", fmt.Sprintf("exclude:           %v", out.Config.Exclude))
	w.Status("", fmt.Sprintf("respect gitignore: %v", out.Config.RespectGitignore))
	w.Status("", fmt.Sprintf("max file size:     %s", out.Config.MaxFileSize))
	w.Status("", fmt.Sprintf("max files:         %d", out.Config.MaxFiles))
	w.Status("", fmt.Sprintf("indexing strategy: %s", out.Config.IndexingStrategy))
	return nil
}
