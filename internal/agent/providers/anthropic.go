package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/robusta-dev/holmes/internal/agent"
	"github.com/robusta-dev/holmes/pkg/models"
)

// Anthropic implements agent.LLM over the Anthropic Messages API.
// Safe for concurrent use.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Required.
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// DefaultModel is used when a request does not name a model.
	DefaultModel string
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(config AnthropicConfig) (*Anthropic, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Anthropic{
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns "anthropic".
func (p *Anthropic) Name() string { return "anthropic" }

// Completion sends the conversation and returns the assistant's reply.
func (p *Anthropic) Completion(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	system, messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, NewError("anthropic", model, err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, NewError("anthropic", model, err)
		}
		params.Tools = tools
		params.ToolChoice = convertAnthropicToolChoice(req.ToolChoice)
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	message := &models.Message{
		Role:      models.RoleAssistant,
		CreatedAt: time.Now(),
	}
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			message.Content += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			arguments := json.RawMessage(toolUse.Input)
			if len(arguments) == 0 {
				arguments = json.RawMessage("{}")
			}
			message.ToolCalls = append(message.ToolCalls, models.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: arguments,
			})
		}
	}

	prompt := int(response.Usage.InputTokens)
	completion := int(response.Usage.OutputTokens)
	return &agent.Completion{
		Message: message,
		Usage: models.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// convertAnthropicMessages maps the conversation to Anthropic's format.
// The leading system message becomes the system prompt; later system
// messages fold into user turns, since the API accepts only one. Runs of
// consecutive tool results merge into a single user message, which the
// API requires after an assistant turn with tool calls. The API also
// requires the first turn to be a user turn; a compacted history starts
// with the assistant summary, so a synthetic user turn is prepended
// when needed.
func convertAnthropicMessages(msgs []*models.Message) (string, []anthropic.MessageParam, error) {
	var (
		system string
		result []anthropic.MessageParam
	)
	var pendingToolResults []anthropic.ContentBlockParamUnion

	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingToolResults...))
			pendingToolResults = nil
		}
	}

	for i, msg := range msgs {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case models.RoleSystem:
			if i == 0 {
				system = msg.Content
				continue
			}
			flushToolResults()
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case models.RoleUser:
			flushToolResults()
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case models.RoleAssistant:
			flushToolResults()
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal(tc.Arguments, &input); err != nil {
					return "", nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) == 0 {
				content = append(content, anthropic.NewTextBlock(""))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case models.RoleTool:
			isError := strings.HasPrefix(msg.Content, "Error: ")
			pendingToolResults = append(pendingToolResults,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError))
		}
	}
	flushToolResults()
	if len(result) > 0 && result[0].Role == anthropic.MessageParamRoleAssistant {
		result = append([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Continue the investigation.")),
		}, result...)
	}
	return system, result, nil
}

func convertAnthropicTools(tools []agent.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		raw, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func convertAnthropicToolChoice(choice agent.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case agent.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case agent.ToolChoiceTool:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *Anthropic) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		provErr := NewError("anthropic", model, err).WithStatus(apiErr.StatusCode)
		if apiErr.RequestID != "" {
			provErr = provErr.WithRequestID(apiErr.RequestID)
		}
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				provErr = provErr.WithMessage(payload.Error.Message).WithCode(payload.Error.Type)
				if payload.RequestID != "" {
					provErr = provErr.WithRequestID(payload.RequestID)
				}
			}
		}
		return provErr
	}

	return NewError("anthropic", model, err)
}
