package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/robusta-dev/holmes/internal/observability"
	"github.com/robusta-dev/holmes/internal/prompts"
	"github.com/robusta-dev/holmes/internal/retry"
	"github.com/robusta-dev/holmes/internal/sessions"
	"github.com/robusta-dev/holmes/internal/tokens"
	"github.com/robusta-dev/holmes/internal/toolsets"
	"github.com/robusta-dev/holmes/pkg/models"
)

// RuntimeConfig wires the process-wide agent runtime.
type RuntimeConfig struct {
	// LLM is the provider backend. Required.
	LLM LLM

	// Model names the model for accounting and requests. Required.
	Model string

	// ToolsetStates are the lifecycle-checked toolsets contributing
	// tools.
	ToolsetStates []toolsets.State

	// RefreshToolsets, when non-empty, are the toolsets whose
	// prerequisites get re-checked in the background after the first
	// request. RefreshConfig configures those checks.
	RefreshToolsets []toolsets.Toolset
	RefreshConfig   toolsets.LoadConfig

	// Sessions persists conversation history. Required for session
	// continuity; when nil an in-memory store is created.
	Sessions *sessions.Manager

	// Defaults are the run options used when a caller passes none.
	Defaults RunOptions

	// DispatchConcurrency caps parallel tool executions process-wide.
	DispatchConcurrency int

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.Metrics
	Retry   retry.Config
}

// Runtime is the long-lived handle the HTTP server and CLI run agents
// through. It owns the registry snapshot, swaps it atomically on
// background refresh, and serializes runs per session.
type Runtime struct {
	llm      LLM
	acct     *tokens.Accountant
	sessions *sessions.Manager
	config   RuntimeConfig

	registry  atomic.Pointer[ToolRegistry]
	refresher *toolsets.Refresher
	refreshed sync.Once

	// dispatchSem is shared by every per-request executor so the tool
	// concurrency cap holds process-wide, not per request.
	dispatchSem *semaphore.Weighted
}

// NewRuntime builds the runtime and its initial tool registry.
func NewRuntime(config RuntimeConfig) (*Runtime, error) {
	if config.LLM == nil {
		return nil, ErrNoLLM
	}
	if config.Model == "" {
		return nil, &ConfigError{Component: "runtime", Cause: errors.New("model is required")}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("holmes")
	}
	if config.Defaults.MaxSteps == 0 && config.Defaults.Deadline == 0 {
		config.Defaults = DefaultRunOptions()
	}
	if config.Sessions == nil {
		config.Sessions = sessions.NewManager(sessions.NewMemoryStore(sessions.MemoryConfig{Logger: config.Logger}), nil, config.Logger)
	}

	concurrency := config.DispatchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultDispatchConcurrency
	}

	r := &Runtime{
		llm:         config.LLM,
		acct:        tokens.NewAccountant(config.Model),
		sessions:    config.Sessions,
		config:      config,
		dispatchSem: semaphore.NewWeighted(int64(concurrency)),
	}
	r.registry.Store(NewToolRegistry(config.ToolsetStates, config.Logger))

	if len(config.RefreshToolsets) > 0 {
		r.refresher = toolsets.NewRefresher(config.RefreshToolsets, config.RefreshConfig, func(states []toolsets.State) {
			r.registry.Store(NewToolRegistry(states, config.Logger))
			config.Logger.Info("tool registry refreshed", "tools", r.registry.Load().Len())
		})
	}
	return r, nil
}

// Registry returns the current registry snapshot. Runs started earlier
// keep the snapshot they began with.
func (r *Runtime) Registry() *ToolRegistry {
	return r.registry.Load()
}

// Accountant exposes the runtime's token accountant.
func (r *Runtime) Accountant() *tokens.Accountant { return r.acct }

// RunAgent answers a free-form ask, continuing the session when
// sessionID names an existing one and starting a fresh one otherwise.
func (r *Runtime) RunAgent(ctx context.Context, sessionID, ask string, opts *RunOptions) (*models.LLMResult, error) {
	registry := r.Registry()
	system := prompts.ChatSystemPrompt(capabilitiesOf(registry))

	result, err := r.run(ctx, sessionID, system, ask, r.options(opts))
	r.triggerRefresh()
	return result, err
}

// InvestigateIssue runs a structured investigation of one alert.
//
// When the caller names output sections and supplies no response
// format, a JSON schema over those sections is synthesized and the
// final answer validated against it. Investigations always run in a
// fresh session.
func (r *Runtime) InvestigateIssue(ctx context.Context, issue *models.Issue, instructions []string, sections []prompts.Section, opts *RunOptions) (*models.LLMResult, error) {
	if issue == nil {
		return nil, &ConfigError{Component: "investigation", Cause: errors.New("issue is required")}
	}

	options := r.options(opts)
	if len(options.ResponseFormat) == 0 && len(sections) > 0 {
		options.ResponseFormat = prompts.SectionsSchema(sections)
	}

	registry := r.Registry()
	structured := len(options.ResponseFormat) > 0
	system := prompts.InvestigationSystemPrompt(instructions, sections, capabilitiesOf(registry), structured)

	result, err := r.run(ctx, "", system, prompts.InvestigationAsk(issue), options)
	if m := r.config.Metrics; m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.ObserveInvestigation(status)
	}
	r.triggerRefresh()
	return result, err
}

func (r *Runtime) run(ctx context.Context, sessionID, system, ask string, opts RunOptions) (*models.LLMResult, error) {
	run, err := r.sessions.Begin(ctx, sessionID, system, ask)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionBusy) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionBusy)
		}
		return nil, err
	}
	defer run.Abort()

	executor := NewToolExecutor(r.Registry(), ExecutorConfig{
		Semaphore:      r.dispatchSem,
		PerToolTimeout: opts.PerToolTimeout,
		Logger:         r.config.Logger,
		Tracer:         r.config.Tracer,
		Metrics:        r.config.Metrics,
	})
	loop := NewLoop(r.llm, executor, r.acct, LoopConfig{
		Options: opts,
		Logger:  r.config.Logger.With("session_id", run.ID),
		Tracer:  r.config.Tracer,
		Metrics: r.config.Metrics,
		Retry:   r.config.Retry,
	})

	start := time.Now()
	result, runErr := loop.Run(ctx, run.Messages)

	if result != nil {
		result.SessionID = run.ID
		// Failed runs still commit the history of their last fully
		// completed iteration, so a follow-up ask can pick up from there.
		if err := run.Commit(ctx, result.Messages); err != nil {
			r.config.Logger.Warn("failed to persist session history", "session_id", run.ID, "error", err)
		}
		if m := r.config.Metrics; m != nil {
			m.AddLLMCost(r.llm.Name(), r.acct.Model(), result.Usage.CostUSD)
		}
		r.config.Logger.Info("agent run finished",
			"session_id", run.ID,
			"duration", time.Since(start),
			"tool_calls", len(result.ToolCalls),
			"total_tokens", result.Usage.TotalTokens,
			"cost_usd", result.Usage.CostUSD,
			"failed", runErr != nil,
		)
	}
	return result, runErr
}

// options resolves per-request options against the runtime defaults.
func (r *Runtime) options(opts *RunOptions) RunOptions {
	if opts == nil {
		return r.config.Defaults
	}
	return *opts
}

// triggerRefresh kicks off the first background prerequisite re-check
// after a request has been served from the startup registry. The check
// runs detached from the request context.
func (r *Runtime) triggerRefresh() {
	if r.refresher == nil {
		return
	}
	r.refreshed.Do(func() {
		r.refresher.Trigger(context.Background())
	})
}

func capabilitiesOf(registry *ToolRegistry) []prompts.Capability {
	schemas := registry.Schemas()
	caps := make([]prompts.Capability, 0, len(schemas))
	for _, s := range schemas {
		caps = append(caps, prompts.Capability{Name: s.Name, Description: s.Description})
	}
	return caps
}
