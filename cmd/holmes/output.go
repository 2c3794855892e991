package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/robusta-dev/holmes/pkg/models"
)

// printResult renders a finished run on stdout. Tool call details go to
// stderr-style verbosity only when asked for.
func printResult(cmd *cobra.Command, result *models.LLMResult, showTools bool) {
	out := cmd.OutOrStdout()

	if showTools && len(result.ToolCalls) > 0 {
		for _, tc := range result.ToolCalls {
			status := string(models.StatusSuccess)
			if tc.Result != nil {
				status = string(tc.Result.Status)
			}
			desc := tc.Description
			if desc == "" {
				desc = tc.Name
			}
			fmt.Fprintf(out, "[%s] %s (%s, %d tokens)\n", status, desc, tc.Duration.Round(time.Millisecond), tc.TokenCount)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, result.Result)

	if result.SessionID != "" {
		fmt.Fprintf(out, "\nsession: %s\n", result.SessionID)
	}
	if result.Usage.TotalTokens > 0 {
		fmt.Fprintf(out, "tokens: %d prompt, %d completion", result.Usage.PromptTokens, result.Usage.CompletionTokens)
		if result.Usage.CostUSD > 0 {
			fmt.Fprintf(out, " ($%.4f)", result.Usage.CostUSD)
		}
		fmt.Fprintln(out)
	}
}
