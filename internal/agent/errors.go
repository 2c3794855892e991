package agent

import (
	"errors"
	"fmt"
)

// Common sentinel errors for agent operations.
var (
	// ErrNoLLM indicates no LLM provider is configured.
	ErrNoLLM = errors.New("no llm provider configured")

	// ErrContextExceeded indicates the message set cannot be made to fit
	// the model's context window even after truncation and compaction.
	ErrContextExceeded = errors.New("context window exceeded")

	// ErrSessionBusy indicates a concurrent run holds the session.
	ErrSessionBusy = errors.New("session is busy")
)

// LoopPhase represents a distinct phase in the agent loop state machine.
type LoopPhase string

const (
	// PhaseStart covers budget enforcement before the LLM call.
	PhaseStart LoopPhase = "start"

	// PhaseAwaitLLM is the LLM completion call.
	PhaseAwaitLLM LoopPhase = "await_llm"

	// PhaseDispatch is concurrent tool execution.
	PhaseDispatch LoopPhase = "dispatch"

	// PhaseBudget is post-dispatch truncation and compaction.
	PhaseBudget LoopPhase = "budget"

	// PhaseDone assembles the result.
	PhaseDone LoopPhase = "done"
)

// LoopError wraps a failure with the phase and iteration it occurred in.
// The partial message history up to the last completed iteration is
// attached for debugging.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop failed at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error { return e.Cause }

// IsContextExceeded reports whether err is (or wraps) a context-window
// exhaustion failure.
func IsContextExceeded(err error) bool {
	return errors.Is(err, ErrContextExceeded)
}

// ConfigError indicates a construction-time misconfiguration (unknown
// model, broken toolset config). It is fatal for the caller that hit it.
type ConfigError struct {
	Component string
	Cause     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %v", e.Component, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }
