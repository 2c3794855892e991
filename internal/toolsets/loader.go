package toolsets

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// LoadConfig configures toolset loading.
type LoadConfig struct {
	// Disabled names toolsets the user turned off; they are never
	// prerequisite-checked.
	Disabled []string

	// CheckConcurrency bounds parallel prerequisite checks. Default: 8.
	CheckConcurrency int

	// CheckTimeout applies to each prerequisite check. Default: 20s.
	CheckTimeout time.Duration

	// Cache, when set, short-circuits checks for toolsets with a fresh
	// cached status.
	Cache *StatusCache

	// Logger receives load diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

func (c LoadConfig) withDefaults() LoadConfig {
	if c.CheckConcurrency <= 0 {
		c.CheckConcurrency = 8
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 20 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Load runs the lifecycle for every toolset: configured → prerequisites
// checked → enabled or failed. Checks run concurrently; the returned
// slice preserves the input order.
func Load(ctx context.Context, sets []Toolset, cfg LoadConfig) []State {
	cfg = cfg.withDefaults()
	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}

	states := make([]State, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.CheckConcurrency)

	for i, ts := range sets {
		if ts == nil {
			continue
		}
		if disabled[ts.Name()] {
			states[i] = State{Toolset: ts, Enabled: false, Status: StatusDisabled}
			continue
		}
		g.Go(func() error {
			states[i] = check(gctx, ts, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return states
}

func check(ctx context.Context, ts Toolset, cfg LoadConfig) State {
	if cfg.Cache != nil {
		if entry, ok := cfg.Cache.Lookup(ts.Name()); ok {
			return State{Toolset: ts, Enabled: true, Status: entry.Status, Error: entry.Error}
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.CheckTimeout)
	defer cancel()

	state := State{Toolset: ts, Enabled: true, Status: StatusEnabled}
	if err := ts.CheckPrerequisites(checkCtx); err != nil {
		state.Status = StatusFailed
		state.Error = err.Error()
		cfg.Logger.Warn("toolset prerequisites failed",
			"toolset", ts.Name(),
			"error", err,
		)
	}
	if cfg.Cache != nil {
		cfg.Cache.Record(ts.Name(), state.Status, state.Error)
	}
	return state
}
