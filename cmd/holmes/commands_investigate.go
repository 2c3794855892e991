package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robusta-dev/holmes/internal/prompts"
	"github.com/robusta-dev/holmes/pkg/models"
)

// buildInvestigateCmd creates the "investigate" command that runs a
// structured investigation of one alert.
func buildInvestigateCmd() *cobra.Command {
	var (
		configPath   string
		debug        bool
		file         string
		instructions []string
		sections     []string
		showTools    bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "investigate",
		Short: "Investigate an alert payload",
		Long: `Investigate an alert described as JSON:

  {"name": "KubePodCrashLooping", "source": "prometheus",
   "description": "...", "raw_data": {...}}

The payload is read from --file, or from stdin when --file is "-" or
omitted.`,
		Example: `  # From a file, with a runbook hint
  holmes investigate --file alert.json \
    --instructions "check the pod's previous logs first"

  # From stdin with custom answer sections
  cat alert.json | holmes investigate \
    --section "Root Cause:the most likely cause, with evidence" \
    --section "Remediation:concrete next steps"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			issue, err := readIssue(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			secs, err := parseSections(sections)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, configPath, debug, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			result, err := a.runtime.InvestigateIssue(ctx, issue, instructions, secs, nil)
			if result != nil {
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(result); encErr != nil {
						return encErr
					}
				} else {
					printResult(cmd, result, showTools)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Alert JSON file ('-' for stdin)")
	cmd.Flags().StringArrayVar(&instructions, "instructions", nil, "Runbook instruction for this alert (repeatable)")
	cmd.Flags().StringArrayVar(&sections, "section", nil, "Answer section as 'Title:description' (repeatable)")
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "Print each executed tool call")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}

func readIssue(file string, stdin io.Reader) (*models.Issue, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read alert payload: %w", err)
	}

	var issue models.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, fmt.Errorf("parse alert payload: %w", err)
	}
	if strings.TrimSpace(issue.Name) == "" {
		return nil, fmt.Errorf("alert payload needs a non-empty name")
	}
	return &issue, nil
}

func parseSections(raw []string) ([]prompts.Section, error) {
	sections := make([]prompts.Section, 0, len(raw))
	for _, s := range raw {
		title, desc, _ := strings.Cut(s, ":")
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, fmt.Errorf("invalid --section %q, want 'Title:description'", s)
		}
		sections = append(sections, prompts.Section{Title: title, Description: strings.TrimSpace(desc)})
	}
	return sections, nil
}
