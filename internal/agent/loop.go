package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	agentctx "github.com/robusta-dev/holmes/internal/agent/context"
	"github.com/robusta-dev/holmes/internal/observability"
	"github.com/robusta-dev/holmes/internal/retry"
	"github.com/robusta-dev/holmes/internal/tokens"
	"github.com/robusta-dev/holmes/pkg/models"
)

// stepBudgetWarning is appended to the result when a run stops because
// it used up its step budget rather than because the model finished.
const stepBudgetWarning = "[The investigation reached its maximum number of steps and may have been interrupted before completion. Findings above may be partial.]"

// LoopConfig wires the loop's collaborators.
type LoopConfig struct {
	Options RunOptions

	// Logger receives loop diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Tracer opens a span per iteration and per LLM call. Default: no-op.
	Tracer trace.Tracer

	// Metrics records LLM request counts, latencies, and token usage.
	Metrics *observability.Metrics

	// Retry governs transient LLM provider errors. Zero value uses
	// retry.DefaultConfig (3 attempts, exponential backoff with jitter).
	Retry retry.Config
}

// Loop drives the LLM and tool dialogue for one run.
//
// Each iteration moves through four states: START ensures the history
// fits the context budget, AWAIT_LLM obtains the assistant message,
// DISPATCH executes any requested tools concurrently, and BUDGET shrinks
// the grown history (truncation, then at most one compaction) before the
// next iteration. The loop terminates on an assistant message without
// tool calls, on step-budget exhaustion, on context exhaustion, on a
// permanent provider error, or on cancellation.
type Loop struct {
	llm       LLM
	executor  *ToolExecutor
	acct      *tokens.Accountant
	truncator *agentctx.Truncator
	compactor *agentctx.Compactor
	config    LoopConfig
}

// NewLoop creates a loop over the given provider, executor, and
// accountant.
func NewLoop(llm LLM, executor *ToolExecutor, acct *tokens.Accountant, config LoopConfig) *Loop {
	config.Options = config.Options.sanitized()
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("holmes")
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.DefaultConfig()
	}

	l := &Loop{
		llm:      llm,
		executor: executor,
		acct:     acct,
		config:   config,
	}
	l.truncator = agentctx.NewTruncator(acct, config.Options.MaxToolOutputTokens)
	l.compactor = agentctx.NewCompactor(l.summarize, acct, config.Logger)
	return l
}

// Run executes the loop to completion over the prepared message list.
//
// The loop operates on its own deep copy of messages; the caller's slice
// is never mutated. On failure the returned LLMResult still carries the
// history as of the last fully completed iteration, for inspection.
func (l *Loop) Run(ctx context.Context, messages []*models.Message) (*models.LLMResult, error) {
	if l.llm == nil {
		return nil, ErrNoLLM
	}
	opts := l.config.Options

	var responseSchema *jsonschema.Schema
	if len(opts.ResponseFormat) > 0 {
		var err error
		responseSchema, err = jsonschema.CompileString("response_format.json", string(opts.ResponseFormat))
		if err != nil {
			return nil, &ConfigError{Component: "response_format", Cause: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	history := models.CloneMessages(messages)
	res := &models.LLMResult{Messages: history, ToolCalls: []models.ToolCallRecord{}}
	guard := newRepetitionGuard(opts.RepetitionCap)
	stepsRemaining := opts.MaxSteps

	// maxSteps of zero returns the prepared prompt untouched: no LLM
	// call, no tool calls, empty result content.
	if stepsRemaining == 0 {
		return res, nil
	}

	for iteration := 0; ; iteration++ {
		// Iteration spans are siblings under the run context, not nested
		// inside one another.
		stepCtx, iterSpan := l.config.Tracer.Start(ctx, "agent.step",
			trace.WithAttributes(
				attribute.Int("step.iteration", iteration),
				attribute.Int("step.remaining", stepsRemaining),
				attribute.Int("step.history_len", len(history)),
			))

		// START: the history must fit before we spend a completion.
		fitted, err := l.ensureFit(stepCtx, history)
		history = fitted
		res.Messages = history
		if err != nil {
			iterSpan.SetStatus(codes.Error, err.Error())
			iterSpan.End()
			return res, &LoopError{Phase: PhaseStart, Iteration: iteration, Cause: err}
		}

		// AWAIT_LLM
		completion, err := l.complete(stepCtx, &CompletionRequest{
			Model:          l.acct.Model(),
			Messages:       history,
			Tools:          l.executor.Registry().Schemas(),
			ToolChoice:     opts.ToolChoice,
			Temperature:    opts.Temperature,
			ResponseFormat: opts.ResponseFormat,
			MaxTokens:      l.acct.MaxOutput(),
		})
		if err != nil {
			iterSpan.SetStatus(codes.Error, err.Error())
			iterSpan.End()
			return res, &LoopError{Phase: PhaseAwaitLLM, Iteration: iteration, Cause: err}
		}
		stepsRemaining--
		l.addUsage(res, completion.Usage)

		assistant := completion.Message
		assistant.Role = models.RoleAssistant
		if assistant.CreatedAt.IsZero() {
			assistant.CreatedAt = time.Now()
		}

		// DONE: no tool calls means the model answered.
		if len(assistant.ToolCalls) == 0 {
			history = append(history, assistant)
			res.Messages = history
			res.Result = assistant.Content
			iterSpan.End()
			if responseSchema != nil {
				if err := validateAgainstSchema(responseSchema, assistant.Content); err != nil {
					return res, &LoopError{Phase: PhaseDone, Iteration: iteration, Cause: err}
				}
			}
			return res, nil
		}

		// DISPATCH: execute this turn's tool calls concurrently; results
		// are reordered to the emission order before they are appended.
		// Nothing from this turn is committed until the phase completes,
		// so cancellation leaves the history at the last full iteration.
		staged, records, err := l.dispatch(stepCtx, assistant, guard)
		if err != nil {
			iterSpan.SetStatus(codes.Error, err.Error())
			iterSpan.End()
			return res, &LoopError{Phase: PhaseDispatch, Iteration: iteration, Cause: err}
		}
		history = append(history, staged...)
		res.Messages = history
		res.ToolCalls = append(res.ToolCalls, records...)

		// BUDGET: shrink the grown history before the next turn.
		fitted, err = l.ensureFit(stepCtx, history)
		history = fitted
		res.Messages = history
		if err != nil {
			iterSpan.SetStatus(codes.Error, err.Error())
			iterSpan.End()
			return res, &LoopError{Phase: PhaseBudget, Iteration: iteration, Cause: err}
		}
		iterSpan.End()

		if stepsRemaining == 0 {
			res.Result = appendWarning(assistant.Content, stepBudgetWarning)
			l.config.Logger.Warn("step budget exhausted",
				"max_steps", opts.MaxSteps,
				"tool_calls", len(res.ToolCalls),
			)
			return res, nil
		}
	}
}

// dispatch runs one assistant turn's tool calls and returns the staged
// messages (assistant first, then one tool message per call in emission
// order) plus the provenance records.
func (l *Loop) dispatch(ctx context.Context, assistant *models.Message, guard *repetitionGuard) ([]*models.Message, []models.ToolCallRecord, error) {
	calls := assistant.ToolCalls

	refused := map[string]*models.StructuredToolResult{}
	allowed := make([]models.ToolCall, 0, len(calls))
	for _, tc := range calls {
		if guard.allow(tc.Name, tc.Arguments) {
			allowed = append(allowed, tc)
			continue
		}
		l.config.Logger.Warn("tool call short-circuited by repetition guard", "tool", tc.Name)
		refused[tc.ID] = &models.StructuredToolResult{
			Status: models.StatusError,
			Error:  guard.refusalError(tc.Name),
		}
	}

	dispatches, err := l.executor.ExecuteAll(ctx, allowed)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]Dispatch, len(dispatches))
	for _, d := range dispatches {
		byID[d.Call.ID] = d
	}

	staged := make([]*models.Message, 0, len(calls)+1)
	staged = append(staged, assistant)
	records := make([]models.ToolCallRecord, 0, len(calls))

	for _, tc := range calls {
		var (
			result   *models.StructuredToolResult
			duration time.Duration
		)
		if r, ok := refused[tc.ID]; ok {
			result = r
		} else {
			d := byID[tc.ID]
			result = d.Result
			duration = d.Duration
		}
		if result == nil {
			result = errorResult(nil, "tool %s produced no result", tc.Name)
		}
		result.ReturnedTokenCount = l.acct.CountText(result.Data)

		staged = append(staged, &models.Message{
			Role:       models.RoleTool,
			Content:    result.Content(),
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			CreatedAt:  time.Now(),
		})
		records = append(records, models.ToolCallRecord{
			ID:          tc.ID,
			Name:        tc.Name,
			Description: l.describeCall(tc, result),
			Arguments:   result.Params,
			Result:      result,
			TokenCount:  result.ReturnedTokenCount,
			Duration:    duration,
		})
	}
	return staged, records, nil
}

// ensureFit applies truncation and, when that is not enough, a single
// compaction. A history that still does not fit is a hard stop.
func (l *Loop) ensureFit(ctx context.Context, history []*models.Message) ([]*models.Message, error) {
	if l.truncator.Fit(history) {
		return history, nil
	}
	if l.config.Options.DisableCompaction {
		return history, ErrContextExceeded
	}

	compacted, err := l.compactor.Compact(ctx, history)
	if err != nil {
		// The original history is retained on compaction failure; the
		// run then stops below if it still does not fit.
		l.config.Logger.Warn("compaction failed, keeping original history", "error", err)
	}
	history = compacted
	if !l.truncator.Fit(history) {
		return history, ErrContextExceeded
	}
	return history, nil
}

// complete calls the provider, retrying transient failures with
// exponential backoff.
func (l *Loop) complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	var completion *Completion
	start := time.Now()

	cfg := l.config.Retry
	cfg.RetryIf = isTransient
	result := retry.Do(ctx, cfg, func() error {
		var err error
		completion, err = l.llm.Completion(ctx, req)
		return err
	})

	status := "success"
	if result.Err != nil {
		status = "error"
	}
	if m := l.config.Metrics; m != nil {
		m.ObserveLLMRequest(l.llm.Name(), req.Model, status, time.Since(start))
	}
	if result.Err != nil {
		return nil, fmt.Errorf("llm completion failed after %d attempts: %w", result.Attempts, result.Err)
	}
	if completion == nil || completion.Message == nil {
		return nil, errors.New("llm returned an empty completion")
	}
	if m := l.config.Metrics; m != nil {
		m.AddLLMTokens(l.llm.Name(), req.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	}
	return completion, nil
}

// summarize adapts the loop's provider for the compactor.
func (l *Loop) summarize(ctx context.Context, prompt string) (string, error) {
	completion, err := l.complete(ctx, &CompletionRequest{
		Model: l.acct.Model(),
		Messages: []*models.Message{
			{Role: models.RoleUser, Content: prompt},
		},
		MaxTokens: l.acct.MaxOutput(),
	})
	if err != nil {
		return "", err
	}
	return completion.Message.Content, nil
}

func (l *Loop) addUsage(res *models.LLMResult, usage models.Usage) {
	res.Usage.PromptTokens += usage.PromptTokens
	res.Usage.CompletionTokens += usage.CompletionTokens
	res.Usage.TotalTokens = res.Usage.PromptTokens + res.Usage.CompletionTokens
	res.Usage.CostUSD = l.acct.Cost(res.Usage.PromptTokens, res.Usage.CompletionTokens)
}

func (l *Loop) describeCall(tc models.ToolCall, result *models.StructuredToolResult) string {
	if tool, ok := l.executor.Registry().Lookup(tc.Name); ok {
		if ol, ok := tool.(interface {
			OneLiner(map[string]any) string
		}); ok && result.Params != nil {
			if line := ol.OneLiner(result.Params); line != "" {
				return line
			}
		}
		return tool.Description()
	}
	return ""
}

func validateAgainstSchema(schema *jsonschema.Schema, content string) error {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return fmt.Errorf("final answer is not valid JSON: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("final answer does not match response format: %w", err)
	}
	return nil
}

func appendWarning(content, warning string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return warning
	}
	return content + "\n\n" + warning
}

// isTransient reports whether a provider error is worth retrying.
// Providers expose this through a Retryable method on their error types;
// plain context errors never retry.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
