package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/homeopathy-case-engine/internal/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as MCP tools over stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout exposing suggestion,
normalization, reference lookup and outcome tools. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, err := opts.application(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			return mcp.NewServer(application.Suggestions, application.Learning, application.Logger()).Start(ctx)
		},
	}
}
