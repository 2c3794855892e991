package toolsets

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubToolset struct {
	name   string
	check  func(ctx context.Context) error
	checks atomic.Int32
}

func (s *stubToolset) Name() string  { return s.name }
func (s *stubToolset) Tools() []Tool { return nil }

func (s *stubToolset) CheckPrerequisites(ctx context.Context) error {
	s.checks.Add(1)
	if s.check != nil {
		return s.check(ctx)
	}
	return nil
}

func TestLoadStatuses(t *testing.T) {
	healthy := &stubToolset{name: "kubernetes"}
	broken := &stubToolset{name: "grafana", check: func(ctx context.Context) error {
		return errors.New("GRAFANA_URL not set")
	}}
	unwanted := &stubToolset{name: "aws"}

	states := Load(context.Background(), []Toolset{healthy, broken, unwanted}, LoadConfig{
		Disabled: []string{"aws"},
	})

	if len(states) != 3 {
		t.Fatalf("states = %d, want 3", len(states))
	}
	if states[0].Status != StatusEnabled || !states[0].Active() {
		t.Errorf("healthy toolset: %+v", states[0])
	}
	if states[1].Status != StatusFailed || states[1].Error != "GRAFANA_URL not set" {
		t.Errorf("broken toolset: %+v", states[1])
	}
	if states[1].Active() {
		t.Error("failed toolset reported active")
	}
	if states[2].Status != StatusDisabled || states[2].Enabled {
		t.Errorf("disabled toolset: %+v", states[2])
	}
	if unwanted.checks.Load() != 0 {
		t.Error("disabled toolset was prerequisite-checked")
	}
}

func TestLoadPreservesOrderUnderConcurrency(t *testing.T) {
	var sets []Toolset
	names := []string{"one", "two", "three", "four", "five"}
	for _, name := range names {
		sets = append(sets, &stubToolset{name: name, check: func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			return nil
		}})
	}

	states := Load(context.Background(), sets, LoadConfig{CheckConcurrency: 3})
	for i, s := range states {
		if s.Toolset.Name() != names[i] {
			t.Errorf("states[%d] = %s, want %s", i, s.Toolset.Name(), names[i])
		}
	}
}

func TestLoadCheckTimeout(t *testing.T) {
	hang := &stubToolset{name: "slow", check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	start := time.Now()
	states := Load(context.Background(), []Toolset{hang}, LoadConfig{
		CheckTimeout: 20 * time.Millisecond,
	})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Load hung for %v", elapsed)
	}
	if states[0].Status != StatusFailed {
		t.Errorf("timed-out check: %+v", states[0])
	}
}

func TestLoadNilToolset(t *testing.T) {
	states := Load(context.Background(), []Toolset{nil, &stubToolset{name: "real"}}, LoadConfig{})
	if states[0].Toolset != nil {
		t.Errorf("nil slot populated: %+v", states[0])
	}
	if states[1].Status != StatusEnabled {
		t.Errorf("real toolset: %+v", states[1])
	}
}

func TestLoadUsesFreshCache(t *testing.T) {
	cache := OpenStatusCache(t.TempDir()+"/status.json", time.Hour)
	cache.Record("kubernetes", StatusFailed, "kubectl not on PATH")

	ts := &stubToolset{name: "kubernetes"}
	states := Load(context.Background(), []Toolset{ts}, LoadConfig{Cache: cache})

	if ts.checks.Load() != 0 {
		t.Error("fresh cache entry did not short-circuit the check")
	}
	if states[0].Status != StatusFailed || states[0].Error != "kubectl not on PATH" {
		t.Errorf("cached state not used: %+v", states[0])
	}
}

func TestLoadRecordsCheckOutcome(t *testing.T) {
	cache := OpenStatusCache(t.TempDir()+"/status.json", time.Hour)
	ts := &stubToolset{name: "kubernetes"}

	Load(context.Background(), []Toolset{ts}, LoadConfig{Cache: cache})
	if ts.checks.Load() != 1 {
		t.Fatalf("checks = %d, want 1", ts.checks.Load())
	}

	entry, ok := cache.Lookup("kubernetes")
	if !ok || entry.Status != StatusEnabled {
		t.Errorf("cache entry = %+v, %v", entry, ok)
	}

	// Second load is served from the cache.
	Load(context.Background(), []Toolset{ts}, LoadConfig{Cache: cache})
	if ts.checks.Load() != 1 {
		t.Error("cached toolset re-checked")
	}
}
