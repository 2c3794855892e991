package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/robusta-dev/holmes/internal/agent"
	"github.com/robusta-dev/holmes/internal/agent/providers"
	"github.com/robusta-dev/holmes/internal/config"
	"github.com/robusta-dev/holmes/internal/observability"
	"github.com/robusta-dev/holmes/internal/retry"
	"github.com/robusta-dev/holmes/internal/sessions"
	"github.com/robusta-dev/holmes/internal/toolsets"
	"github.com/robusta-dev/holmes/internal/toolsets/system"
)

// defaultConfigName is looked up in the working directory when no
// --config flag or HOLMES_CONFIG variable names a file.
const defaultConfigName = "holmes.yaml"

// app holds everything a command needs after bootstrap.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	runtime *agent.Runtime
	store   *sessions.MemoryStore

	shutdownTracer func(context.Context) error
}

// newApp loads configuration and wires the agent runtime. serving
// toggles the pieces only the server needs (metrics registry, session
// sweeper).
func newApp(ctx context.Context, configPath string, debug, serving bool) (*app, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	var metrics *observability.Metrics
	if serving {
		metrics = observability.NewMetrics()
	}

	llm, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	builtins := []toolsets.Toolset{system.New()}
	loadCfg := toolsets.LoadConfig{
		Disabled:     disabledToolsets(builtins, cfg.Toolsets.Enabled),
		CheckTimeout: cfg.Toolsets.CheckTimeout,
		Cache:        openStatusCache(cfg),
		Logger:       logger,
	}
	states := toolsets.Load(ctx, builtins, loadCfg)

	store := sessions.NewMemoryStore(sessions.MemoryConfig{
		IdleTTL: cfg.Sessions.IdleTTL,
		Logger:  logger,
	})

	runtime, err := agent.NewRuntime(agent.RuntimeConfig{
		LLM:                 llm,
		Model:               cfg.LLM.Model,
		ToolsetStates:       states,
		RefreshToolsets:     builtins,
		RefreshConfig:       loadCfg,
		Sessions:            sessions.NewManager(store, nil, logger),
		Defaults:            runOptions(cfg),
		DispatchConcurrency: cfg.Agent.DispatchConcurrency,
		Logger:              logger,
		Tracer:              tracer,
		Metrics:             metrics,
		Retry:               retry.DefaultConfig(),
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		runtime:        runtime,
		store:          store,
		shutdownTracer: shutdownTracer,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Warn("tracer shutdown error", "error", err)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("HOLMES_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigName); err == nil {
			path = defaultConfigName
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildProvider(cfg *config.Config) (agent.LLM, error) {
	p := cfg.LLM.Providers[cfg.LLM.Provider]
	switch cfg.LLM.Provider {
	case "anthropic":
		return providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
	case "openai":
		return providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// disabledToolsets inverts the config's enable list: toolset loading
// works with an exclusion list, the config exposes an inclusion one.
func disabledToolsets(builtins []toolsets.Toolset, enabled []string) []string {
	if len(enabled) == 0 {
		return nil
	}
	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		want[strings.TrimSpace(name)] = true
	}
	var disabled []string
	for _, ts := range builtins {
		if !want[ts.Name()] {
			disabled = append(disabled, ts.Name())
		}
	}
	return disabled
}

func openStatusCache(cfg *config.Config) *toolsets.StatusCache {
	path := cfg.Toolsets.StatusCachePath
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(dir, "holmes", "toolset_status.json")
	}
	return toolsets.OpenStatusCache(path, cfg.Toolsets.StatusCacheTTL)
}

func runOptions(cfg *config.Config) agent.RunOptions {
	opts := agent.DefaultRunOptions()
	if cfg.Agent.MaxSteps > 0 {
		opts.MaxSteps = cfg.Agent.MaxSteps
	}
	if cfg.Agent.Deadline > 0 {
		opts.Deadline = cfg.Agent.Deadline
	}
	if cfg.Agent.RepetitionCap != 0 {
		opts.RepetitionCap = cfg.Agent.RepetitionCap
	}
	if cfg.Agent.MaxToolOutputTokens > 0 {
		opts.MaxToolOutputTokens = cfg.Agent.MaxToolOutputTokens
	}
	if cfg.Agent.PerToolTimeout > 0 {
		opts.PerToolTimeout = cfg.Agent.PerToolTimeout
	}
	opts.DisableCompaction = cfg.Agent.DisableCompaction
	return opts
}
