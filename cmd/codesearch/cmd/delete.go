package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codesearch/engine/internal/output"
	"github.com/codesearch/engine/internal/tools"
)

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the project's index",
		Long:  `Remove the on-disk index directory for the current project. Prompts for confirmation unless --yes is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runDelete(cmd *cobra.Command, yes bool) error {
	root, err := resolveProjectRoot("")
	if err != nil {
		return fmt.Errorf("could not resolve project root: %w", err)
	}
	t := buildTools(root)
	out := output.New(cmd.OutOrStdout())

	confirmed := yes
	if !confirmed {
		confirmed = confirmPrompt(cmd, fmt.Sprintf("Delete index for %s? [y/N] ", root))
	}

	result := t.DeleteIndex(confirmed, nil, nil)
	switch result.Status {
	case tools.StatusCancelled:
		out.Status("", "cancelled")
	case tools.StatusNotFound:
		out.Status("", "no index found")
	default:
		out.Success(fmt.Sprintf("deleted index for %s", root))
		if result.Message != "" {
			out.Warning(result.Message)
		}
	}
	return nil
}

func confirmPrompt(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
