// Package toolsets defines the contracts between the agent core and
// pluggable tool bundles, plus the lifecycle machinery that decides which
// bundles are usable: prerequisite checks, a persisted status cache, and
// background refresh.
package toolsets

import (
	"context"

	"github.com/robusta-dev/holmes/pkg/models"
)

// Param describes one tool parameter.
type Param struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Tool is an opaque, registered capability. Implementations must be safe
// for concurrent invocation; the core does not serialize calls to the
// same tool.
type Tool interface {
	// Name returns the unique tool name used for LLM function calling.
	Name() string

	// Description tells the LLM what the tool does and when to use it.
	Description() string

	// Parameters returns the declared parameter schema.
	Parameters() map[string]Param

	// Invoke executes the tool with coerced parameters. Invoke never
	// reports failure out-of-band: errors come back as a result with
	// StatusError.
	Invoke(ctx context.Context, params map[string]any) *models.StructuredToolResult
}

// OneLiner is optionally implemented by tools that can render a
// user-facing one-line summary of an invocation.
type OneLiner interface {
	OneLiner(params map[string]any) string
}

// Toolset is a named bundle of related tools with shared configuration
// and lifecycle.
type Toolset interface {
	// Name returns the toolset name, unique within a configuration.
	Name() string

	// Tools returns the tools this toolset contributes when enabled.
	Tools() []Tool

	// CheckPrerequisites verifies the toolset can operate (binaries on
	// PATH, credentials present, endpoints reachable). A nil return
	// enables the toolset; an error disables it with that reason.
	CheckPrerequisites(ctx context.Context) error
}

// LoggingToolset is optionally implemented by toolsets that serve log
// fetching. Only one logging toolset is active at a time: the first
// enabled non-default one wins, and default logging toolsets are dropped
// whenever a user-supplied one is present.
type LoggingToolset interface {
	Toolset

	// IsDefaultLogging reports whether this is a built-in default
	// logging toolset rather than a user-supplied one.
	IsDefaultLogging() bool
}

// Status is the lifecycle state of a configured toolset.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
	StatusFailed   Status = "failed"
)

// State pairs a toolset with the outcome of its lifecycle checks.
type State struct {
	Toolset Toolset

	// Enabled is the user's intent from configuration.
	Enabled bool

	// Status is the effective state after prerequisite checks.
	Status Status

	// Error holds the human-readable prerequisite failure, if any.
	Error string
}

// Active reports whether the toolset contributes tools to the registry.
func (s State) Active() bool {
	return s.Status == StatusEnabled
}
