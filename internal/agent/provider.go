package agent

import (
	"context"
	"encoding/json"

	"github.com/robusta-dev/holmes/pkg/models"
)

// LLM defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of one provider API (Anthropic,
// OpenAI, ...) while presenting a unified function-calling interface to
// the loop. Implementations must be safe for concurrent use.
type LLM interface {
	// Completion sends the conversation and returns the assistant's
	// next message, which carries content, tool calls, or both.
	Completion(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name returns the provider name ("anthropic", "openai", ...).
	Name() string
}

// ToolChoiceMode steers whether the LLM may, must not, or must call tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice selects the tool-calling behavior for one completion.
// When Mode is ToolChoiceTool, Name is the tool the LLM must call.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// ToolSchema is the provider-facing description of one tool, following
// the industry function-calling format.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CompletionRequest contains all parameters for one LLM completion.
type CompletionRequest struct {
	// Model specifies which model to use. Required.
	Model string `json:"model"`

	// Messages is the conversation in chronological order, starting with
	// the system message.
	Messages []*models.Message `json:"messages"`

	// Tools defines the tools the LLM may request. Empty disables tool
	// calling for this turn.
	Tools []ToolSchema `json:"tools,omitempty"`

	// ToolChoice steers tool selection. Zero value means auto.
	ToolChoice ToolChoice `json:"tool_choice,omitempty"`

	// Temperature overrides the provider default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`

	// ResponseFormat, when set, is a JSON schema the assistant content
	// must conform to. Providers that support structured output forward
	// it; the loop validates the final answer against it regardless.
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`

	// MaxTokens limits the completion length. Zero uses the model limit.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Completion is the provider's reply to one CompletionRequest.
type Completion struct {
	// Message is the assistant message: content, tool calls, or both.
	Message *models.Message `json:"message"`

	// Usage reports the provider-billed token counts for this call.
	Usage models.Usage `json:"usage"`
}
