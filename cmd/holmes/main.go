// Package main provides the CLI entry point for holmes, a tool-calling
// agent for investigating production systems.
//
// # Basic Usage
//
// Ask a one-shot question:
//
//	holmes ask "why is the payments service restarting?"
//
// Investigate an alert payload:
//
//	holmes investigate --file alert.json
//
// Start the HTTP API server:
//
//	holmes serve --config holmes.yaml
//
// # Environment Variables
//
//   - HOLMES_CONFIG: Path to configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//
// A .env file in the working directory is loaded on startup.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "holmes",
		Short: "holmes - AI agent for production troubleshooting",
		Long: `holmes answers questions about production systems by running
read-only diagnostic tools and reasoning over their output.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildAskCmd(),
		buildInvestigateCmd(),
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "holmes %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
