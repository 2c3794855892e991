package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robusta-dev/holmes/internal/agent"
)

// buildAskCmd creates the "ask" command for one-shot or session-bound
// questions.
func buildAskCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		sessionID  string
		maxSteps   int
		showTools  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the agent a question about your systems",
		Example: `  # One-shot question
  holmes ask "why is the payments service restarting?"

  # Continue a previous conversation
  holmes ask --session 8f14e45f "and what changed before that?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, configPath, debug, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			var opts *agent.RunOptions
			if maxSteps > 0 {
				o := runOptions(a.cfg)
				o.MaxSteps = maxSteps
				opts = &o
			}

			result, err := a.runtime.RunAgent(ctx, sessionID, args[0], opts)
			if result != nil {
				printResult(cmd, result, showTools)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to continue a previous conversation")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Override the LLM call budget for this run")
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "Print each executed tool call")

	return cmd
}

