package toolsets

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher re-runs toolset prerequisite checks in the background and
// hands the fresh states to a swap callback. The swap must be atomic on
// the caller's side; in-flight agent runs keep whatever registry they
// started with.
type Refresher struct {
	sets   []Toolset
	cfg    LoadConfig
	swap   func([]State)
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	lastRun time.Time

	// MinInterval suppresses refreshes triggered in quick succession.
	// Default: 1 minute.
	MinInterval time.Duration
}

// NewRefresher creates a refresher over the given toolsets. swap is
// invoked with the new states when a refresh completes.
func NewRefresher(sets []Toolset, cfg LoadConfig, swap func([]State)) *Refresher {
	cfg = cfg.withDefaults()
	return &Refresher{
		sets:        sets,
		cfg:         cfg,
		swap:        swap,
		logger:      cfg.Logger,
		MinInterval: time.Minute,
	}
}

// Trigger starts a background refresh unless one is already running or
// the last one finished within MinInterval. It returns immediately.
func (r *Refresher) Trigger(ctx context.Context) {
	r.mu.Lock()
	if r.running || time.Since(r.lastRun) < r.MinInterval {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.running = false
			r.lastRun = time.Now()
			r.mu.Unlock()
		}()

		// Refresh bypasses the cache: its whole point is to catch
		// toolsets whose prerequisites changed since the cached check.
		cfg := r.cfg
		cfg.Cache = nil
		states := Load(ctx, r.sets, cfg)
		if cache := r.cfg.Cache; cache != nil {
			for _, s := range states {
				if s.Toolset != nil && s.Enabled {
					cache.Record(s.Toolset.Name(), s.Status, s.Error)
				}
			}
		}
		r.swap(states)
		r.logger.Debug("toolset registry refreshed", "toolsets", len(states))
	}()
}
