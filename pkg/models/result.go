package models

import "time"

// ResultStatus categorizes the outcome of a tool invocation.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
	StatusNoData  ResultStatus = "no_data"
)

// StructuredToolResult is the uniform return shape for every tool.
//
// Exactly one of Data or Error is meaningful per status: Data for
// StatusSuccess (possibly empty) and StatusNoData, Error for StatusError.
// Params echoes the call's arguments for traceability.
type StructuredToolResult struct {
	Status ResultStatus   `json:"status"`
	Data   string         `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
	Params map[string]any `json:"params,omitempty"`

	// ReturnedTokenCount is the token count of Data as seen by the
	// accountant, filled in after execution. Zero means not counted.
	ReturnedTokenCount int `json:"returned_token_count,omitempty"`
}

// Content renders the result as the payload handed back to the LLM.
func (r *StructuredToolResult) Content() string {
	if r == nil {
		return ""
	}
	if r.Status == StatusError {
		return "Error: " + r.Error
	}
	return r.Data
}

// IsError reports whether the result represents a failure.
func (r *StructuredToolResult) IsError() bool {
	return r != nil && r.Status == StatusError
}

// ToolCallRecord is one executed tool call in an LLMResult, in the order
// the LLM emitted it.
type ToolCallRecord struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Arguments   map[string]any        `json:"arguments,omitempty"`
	Result      *StructuredToolResult `json:"result"`
	TokenCount  int                   `json:"token_count,omitempty"`
	Duration    time.Duration         `json:"duration_ns,omitempty"`
}

// Usage aggregates token and cost totals for a run.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// LLMResult is the core's public return for a completed agent run.
type LLMResult struct {
	// Result is the final assistant content.
	Result string `json:"result"`

	// Messages is the full final history, including any compaction.
	Messages []*Message `json:"messages"`

	// ToolCalls lists every executed tool call in emission order.
	ToolCalls []ToolCallRecord `json:"tool_calls"`

	Usage Usage `json:"usage"`

	// SessionID identifies the session the run appended to.
	SessionID string `json:"session_id,omitempty"`
}

// Issue describes an alert or finding handed to InvestigateIssue.
type Issue struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Source      string         `json:"source,omitempty"`
	Description string         `json:"description,omitempty"`
	RawData     map[string]any `json:"raw_data,omitempty"`
}
