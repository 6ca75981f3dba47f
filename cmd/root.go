package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "chatbridge",
	Short:         "OpenAI-compatible proxy in front of a single upstream chat service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
