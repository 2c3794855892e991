package agent

import (
	"encoding/json"
	"time"
)

const (
	// DefaultMaxSteps is the default LLM-completion budget per run.
	DefaultMaxSteps = 10

	// DefaultRunDeadline bounds a whole run.
	DefaultRunDeadline = 10 * time.Minute
)

// RunOptions configures one agent run. The zero value is NOT the
// default; start from DefaultRunOptions and adjust. In particular
// MaxSteps is honored literally, so a zero means "no LLM calls at all".
type RunOptions struct {
	// MaxSteps caps LLM completion calls (compaction calls excluded).
	// Zero returns the prepared prompt without calling the LLM; negative
	// values are treated as DefaultMaxSteps.
	MaxSteps int

	// ToolChoice steers tool selection. Zero value means auto.
	ToolChoice ToolChoice

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// ResponseFormat, when set, is a JSON schema the final answer must
	// validate against.
	ResponseFormat json.RawMessage

	// RepetitionCap limits identical tool calls per run. Zero means
	// DefaultRepetitionCap; negative disables the guard.
	RepetitionCap int

	// DisableCompaction turns off history compaction; truncation alone
	// then decides whether the run fits.
	DisableCompaction bool

	// PerToolTimeout, when positive, bounds each tool invocation.
	PerToolTimeout time.Duration

	// MaxToolOutputTokens caps any single tool result. Zero uses the
	// truncator default.
	MaxToolOutputTokens int

	// Deadline bounds the whole run. Zero means DefaultRunDeadline.
	Deadline time.Duration
}

// DefaultRunOptions returns the baseline options.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		MaxSteps:      DefaultMaxSteps,
		ToolChoice:    ToolChoice{Mode: ToolChoiceAuto},
		RepetitionCap: DefaultRepetitionCap,
		Deadline:      DefaultRunDeadline,
	}
}

func (o RunOptions) sanitized() RunOptions {
	if o.MaxSteps < 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.ToolChoice.Mode == "" {
		o.ToolChoice.Mode = ToolChoiceAuto
	}
	if o.RepetitionCap == 0 {
		o.RepetitionCap = DefaultRepetitionCap
	}
	if o.Deadline <= 0 {
		o.Deadline = DefaultRunDeadline
	}
	return o
}
