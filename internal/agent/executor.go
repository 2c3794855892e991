package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/robusta-dev/holmes/internal/observability"
	"github.com/robusta-dev/holmes/pkg/models"
)

// DefaultDispatchConcurrency bounds concurrent tool executions per
// process. Extra calls in the same dispatch phase queue on the
// semaphore; they never fail.
const DefaultDispatchConcurrency = 16

// ExecutorConfig configures the tool executor.
type ExecutorConfig struct {
	// Concurrency is the process-wide cap on parallel tool executions.
	// Default: DefaultDispatchConcurrency. Ignored when Semaphore is set.
	Concurrency int

	// Semaphore, when set, bounds execution across every executor that
	// shares it. The runtime passes one per process so per-request
	// executors still honor a single cap.
	Semaphore *semaphore.Weighted

	// PerToolTimeout, when positive, bounds each tool invocation. The
	// executor does not impose one by default; tools own their I/O
	// deadlines and the run deadline still applies.
	PerToolTimeout time.Duration

	// Logger receives execution diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Tracer opens a child span per tool call. Default: no-op.
	Tracer trace.Tracer

	// Metrics records tool execution counts and latencies when set.
	Metrics *observability.Metrics
}

// ToolExecutor invokes named tools against a registry, converting every
// failure mode (unknown tool, bad arguments, panic) into an in-band
// StructuredToolResult so the loop always proceeds.
type ToolExecutor struct {
	registry *ToolRegistry
	sem      *semaphore.Weighted
	config   ExecutorConfig
}

// Dispatch is the outcome of one tool invocation.
type Dispatch struct {
	Call     models.ToolCall
	Result   *models.StructuredToolResult
	Duration time.Duration
}

// NewToolExecutor creates an executor over the given registry.
func NewToolExecutor(registry *ToolRegistry, config ExecutorConfig) *ToolExecutor {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultDispatchConcurrency
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("holmes")
	}
	sem := config.Semaphore
	if sem == nil {
		sem = semaphore.NewWeighted(int64(config.Concurrency))
	}
	return &ToolExecutor{
		registry: registry,
		sem:      sem,
		config:   config,
	}
}

// Registry returns the registry the executor resolves names against.
func (e *ToolExecutor) Registry() *ToolRegistry { return e.registry }

// ExecuteAll runs the tool calls of one assistant turn concurrently,
// bounded by the executor semaphore. Results come back in the order the
// calls were emitted, regardless of completion order. A context error
// aborts the phase and discards pending results.
func (e *ToolExecutor) ExecuteAll(ctx context.Context, calls []models.ToolCall) ([]Dispatch, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]Dispatch, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Invoke(ctx, tc)
		}(i, call)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Invoke executes a single tool call. The returned result is never nil.
func (e *ToolExecutor) Invoke(ctx context.Context, call models.ToolCall) Dispatch {
	start := time.Now()

	ctx, span := e.config.Tracer.Start(ctx, "tool."+call.Name,
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
			attribute.Int("tool.args_bytes", len(call.Arguments)),
		))
	defer span.End()

	result := e.invoke(ctx, call)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.String("tool.status", string(result.Status)),
		attribute.Int("tool.result_bytes", len(result.Data)),
		attribute.Int64("tool.duration_ms", duration.Milliseconds()),
	)
	if result.IsError() {
		span.SetStatus(codes.Error, result.Error)
	}
	if m := e.config.Metrics; m != nil {
		m.ObserveToolExecution(call.Name, string(result.Status), duration)
	}
	e.config.Logger.Debug("tool executed",
		"tool", call.Name,
		"status", result.Status,
		"duration", duration,
	)

	return Dispatch{Call: call, Result: result, Duration: duration}
}

func (e *ToolExecutor) invoke(ctx context.Context, call models.ToolCall) (result *models.StructuredToolResult) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return errorResult(nil, "cancelled while waiting for a tool slot: %v", err)
	}
	defer e.sem.Release(1)

	tool, ok := e.registry.Lookup(call.Name)
	if !ok {
		return errorResult(nil, "no tool named %s", call.Name)
	}

	params, err := coerceArguments(call.Arguments, tool.Parameters())
	if err != nil {
		return errorResult(nil, "invalid arguments for %s: %v", call.Name, err)
	}

	if e.config.PerToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.PerToolTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.config.Logger.Error("tool panicked",
				"tool", call.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = errorResult(params, "tool %s panicked: %v", call.Name, r)
		}
	}()

	result = tool.Invoke(ctx, params)
	if result == nil {
		return errorResult(params, "tool %s returned no result", call.Name)
	}
	if result.Params == nil {
		result.Params = params
	}
	return result
}

func errorResult(params map[string]any, format string, args ...any) *models.StructuredToolResult {
	return &models.StructuredToolResult{
		Status: models.StatusError,
		Error:  fmt.Sprintf(format, args...),
		Params: params,
	}
}
