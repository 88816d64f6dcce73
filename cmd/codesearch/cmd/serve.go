package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codesearch/engine/internal/logging"
	"github.com/codesearch/engine/internal/mcpserver"
	"github.com/codesearch/engine/pkg/version"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Run the MCP server over stdio",
		Long: `Expose the project's index to an MCP client (an AI coding assistant)
over stdio. The MCP protocol requires stdout to carry JSON-RPC
messages exclusively, so all diagnostic output is routed to the debug
log file instead of stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pathArg string
			if len(args) > 0 {
				pathArg = args[0]
			}
			return runServe(cmd, pathArg)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command, pathArg string) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	root, err := resolveProjectRoot(pathArg)
	if err != nil {
		return fmt.Errorf("could not resolve project root: %w", err)
	}

	t := buildTools(root)
	server := mcpserver.New(t, version.Version)
	return server.Serve(cmd.Context())
}
