package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/robusta-dev/holmes/internal/toolsets"
	"github.com/robusta-dev/holmes/pkg/models"
)

func testExecutor(t *testing.T, cfg ExecutorConfig, tools ...toolsets.Tool) *ToolExecutor {
	t.Helper()
	return NewToolExecutor(testRegistry(t, tools...), cfg)
}

func TestInvokeUnknownTool(t *testing.T) {
	e := testExecutor(t, ExecutorConfig{})
	d := e.Invoke(context.Background(), models.ToolCall{ID: "x", Name: "missing", Arguments: rawArgs(`{}`)})
	if d.Result.Status != models.StatusError {
		t.Fatalf("status = %s, want error", d.Result.Status)
	}
	if !strings.Contains(d.Result.Error, "missing") {
		t.Errorf("error = %q, want tool name", d.Result.Error)
	}
}

func TestInvokeBadArguments(t *testing.T) {
	tool := &fakeTool{
		name:   "typed",
		params: map[string]toolsets.Param{"count": {Type: "number", Required: true}},
	}
	e := testExecutor(t, ExecutorConfig{}, tool)

	t.Run("missing required", func(t *testing.T) {
		d := e.Invoke(context.Background(), models.ToolCall{ID: "x", Name: "typed", Arguments: rawArgs(`{}`)})
		if d.Result.Status != models.StatusError || !strings.Contains(d.Result.Error, "count") {
			t.Errorf("result = %+v, want missing-parameter error", d.Result)
		}
	})

	t.Run("uncoercible", func(t *testing.T) {
		d := e.Invoke(context.Background(), models.ToolCall{ID: "x", Name: "typed", Arguments: rawArgs(`{"count":"many"}`)})
		if d.Result.Status != models.StatusError {
			t.Errorf("result = %+v, want coercion error", d.Result)
		}
	})
}

func TestInvokeRecoversPanic(t *testing.T) {
	tool := &fakeTool{name: "boom", invoke: func(ctx context.Context, params map[string]any) *models.StructuredToolResult {
		panic("kaput")
	}}
	e := testExecutor(t, ExecutorConfig{}, tool)

	d := e.Invoke(context.Background(), models.ToolCall{ID: "x", Name: "boom", Arguments: rawArgs(`{}`)})
	if d.Result.Status != models.StatusError {
		t.Fatalf("status = %s, want error", d.Result.Status)
	}
	if !strings.Contains(d.Result.Error, "panicked") || !strings.Contains(d.Result.Error, "kaput") {
		t.Errorf("error = %q", d.Result.Error)
	}
}

func TestInvokeNilResult(t *testing.T) {
	tool := &fakeTool{name: "empty", invoke: func(ctx context.Context, params map[string]any) *models.StructuredToolResult {
		return nil
	}}
	e := testExecutor(t, ExecutorConfig{}, tool)

	d := e.Invoke(context.Background(), models.ToolCall{ID: "x", Name: "empty", Arguments: rawArgs(`{}`)})
	if d.Result == nil || d.Result.Status != models.StatusError {
		t.Errorf("result = %+v, want synthesized error", d.Result)
	}
}

func TestInvokePerToolTimeout(t *testing.T) {
	tool := &fakeTool{name: "slow", invoke: func(ctx context.Context, params map[string]any) *models.StructuredToolResult {
		select {
		case <-ctx.Done():
			return &models.StructuredToolResult{Status: models.StatusError, Error: "deadline: " + ctx.Err().Error(), Params: params}
		case <-time.After(5 * time.Second):
			return &models.StructuredToolResult{Status: models.StatusSuccess, Data: "too late", Params: params}
		}
	}}
	e := testExecutor(t, ExecutorConfig{PerToolTimeout: 10 * time.Millisecond}, tool)

	d := e.Invoke(context.Background(), models.ToolCall{ID: "x", Name: "slow", Arguments: rawArgs(`{}`)})
	if d.Result.Status != models.StatusError || !strings.Contains(d.Result.Error, "deadline") {
		t.Errorf("result = %+v, want deadline error", d.Result)
	}
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	mk := func(name string, delay time.Duration) *fakeTool {
		return &fakeTool{name: name, invoke: func(ctx context.Context, params map[string]any) *models.StructuredToolResult {
			time.Sleep(delay)
			return &models.StructuredToolResult{Status: models.StatusSuccess, Data: name, Params: params}
		}}
	}
	e := testExecutor(t, ExecutorConfig{},
		mk("t1", 300*time.Millisecond), mk("t2", 100*time.Millisecond), mk("t3", 200*time.Millisecond))

	calls := []models.ToolCall{
		{ID: "1", Name: "t1", Arguments: rawArgs(`{}`)},
		{ID: "2", Name: "t2", Arguments: rawArgs(`{}`)},
		{ID: "3", Name: "t3", Arguments: rawArgs(`{}`)},
	}
	start := time.Now()
	dispatches, err := e.ExecuteAll(context.Background(), calls)
	if err != nil {
		t.Fatalf("ExecuteAll: %v", err)
	}
	// The calls run in parallel: the phase takes about as long as the
	// slowest tool, not the 600ms sum.
	if elapsed := time.Since(start); elapsed > 450*time.Millisecond {
		t.Errorf("ExecuteAll took %v, want well under the serial sum", elapsed)
	}
	for i, d := range dispatches {
		if d.Call.ID != calls[i].ID {
			t.Errorf("dispatch %d = call %s, want %s", i, d.Call.ID, calls[i].ID)
		}
		if d.Result.Data != calls[i].Name {
			t.Errorf("dispatch %d data = %q", i, d.Result.Data)
		}
	}
}

func TestSharedSemaphoreBoundsAcrossExecutors(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	var active, peak atomic.Int32
	mk := func(name string) *fakeTool {
		return &fakeTool{name: name, invoke: func(ctx context.Context, params map[string]any) *models.StructuredToolResult {
			cur := active.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
			return &models.StructuredToolResult{Status: models.StatusSuccess, Data: name, Params: params}
		}}
	}

	// Two executors sharing one semaphore model two concurrent requests
	// in the same process.
	e1 := testExecutor(t, ExecutorConfig{Semaphore: sem}, mk("t1"))
	e2 := testExecutor(t, ExecutorConfig{Semaphore: sem}, mk("t2"))

	var wg sync.WaitGroup
	for _, run := range []struct {
		e    *ToolExecutor
		name string
	}{{e1, "t1"}, {e2, "t2"}} {
		wg.Add(1)
		go func(e *ToolExecutor, name string) {
			defer wg.Done()
			calls := []models.ToolCall{
				{ID: name + "-1", Name: name, Arguments: rawArgs(`{}`)},
				{ID: name + "-2", Name: name, Arguments: rawArgs(`{}`)},
			}
			if _, err := e.ExecuteAll(context.Background(), calls); err != nil {
				t.Errorf("ExecuteAll(%s): %v", name, err)
			}
		}(run.e, run.name)
	}
	wg.Wait()

	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent executions = %d, want 1 across both executors", p)
	}
}

func TestExecuteAllEmpty(t *testing.T) {
	e := testExecutor(t, ExecutorConfig{})
	dispatches, err := e.ExecuteAll(context.Background(), nil)
	if err != nil || dispatches != nil {
		t.Errorf("ExecuteAll(nil) = %v, %v; want nil, nil", dispatches, err)
	}
}
