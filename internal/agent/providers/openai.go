package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/robusta-dev/holmes/internal/agent"
	"github.com/robusta-dev/holmes/pkg/models"
)

// OpenAI implements agent.LLM over OpenAI-compatible chat completion
// APIs. Setting BaseURL points it at any compatible endpoint (Azure
// front doors, local inference servers, proxies). Safe for concurrent
// use.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	// APIKey is the API key. Required.
	APIKey string

	// BaseURL overrides the default API base URL for compatible
	// endpoints.
	BaseURL string

	// DefaultModel is used when a request does not name a model.
	DefaultModel string
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(config OpenAIConfig) (*OpenAI, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAI{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns "openai".
func (p *OpenAI) Name() string { return "openai" }

// Completion sends the conversation and returns the assistant's reply.
func (p *OpenAI) Completion(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
		chatReq.ToolChoice = convertOpenAIToolChoice(req.ToolChoice)
	}
	if len(req.ResponseFormat) > 0 {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: req.ResponseFormat,
			},
		}
	}

	response, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, model)
	}
	if len(response.Choices) == 0 {
		return nil, NewError("openai", model, errors.New("empty response: no choices"))
	}

	choice := response.Choices[0].Message
	message := &models.Message{
		Role:      models.RoleAssistant,
		Content:   choice.Content,
		CreatedAt: time.Now(),
	}
	for _, tc := range choice.ToolCalls {
		arguments := json.RawMessage(tc.Function.Arguments)
		if len(arguments) == 0 {
			arguments = json.RawMessage("{}")
		}
		message.ToolCalls = append(message.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: arguments,
		})
	}

	return &agent.Completion{
		Message: message,
		Usage: models.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
	}, nil
}

// convertOpenAIMessages maps the conversation to OpenAI's format, which
// mirrors ours closely: system messages stay in place and each tool
// result is its own message linked by ToolCallID.
func convertOpenAIMessages(msgs []*models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			result = append(result, oaiMsg)
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return result
}

func convertOpenAITools(tools []agent.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}
	}
	return result
}

func convertOpenAIToolChoice(choice agent.ToolChoice) any {
	switch choice.Mode {
	case agent.ToolChoiceNone:
		return "none"
	case agent.ToolChoiceTool:
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice.Name},
		}
	default:
		return "auto"
	}
}

func (p *OpenAI) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		provErr := NewError("openai", model, err).
			WithStatus(apiErr.HTTPStatusCode).
			WithMessage(apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			provErr = provErr.WithCode(code)
		}
		if apiErr.Type != "" && provErr.Code == "" {
			provErr = provErr.WithCode(apiErr.Type)
		}
		return provErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewError("openai", model, err).
			WithStatus(reqErr.HTTPStatusCode).
			WithMessage(fmt.Sprintf("request failed: %v", reqErr.Err))
	}

	return NewError("openai", model, err)
}
