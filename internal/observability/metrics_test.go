package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLLMRequest(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.ObserveLLMRequest("anthropic", "claude-sonnet-4", "success", 2*time.Second)
	m.ObserveLLMRequest("anthropic", "claude-sonnet-4", "success", time.Second)
	m.ObserveLLMRequest("anthropic", "claude-sonnet-4", "error", time.Second)

	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-sonnet-4", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-sonnet-4", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestAddLLMTokensSkipsZero(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.AddLLMTokens("openai", "gpt-4o", 120, 0)

	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o", "prompt")); got != 120 {
		t.Errorf("prompt tokens = %v, want 120", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o", "completion")); got != 0 {
		t.Errorf("completion tokens = %v, want 0", got)
	}
}

func TestAddLLMCostAccumulates(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.AddLLMCost("anthropic", "claude-sonnet-4", 0.25)
	m.AddLLMCost("anthropic", "claude-sonnet-4", 0.75)
	m.AddLLMCost("anthropic", "claude-sonnet-4", -1) // ignored

	if got := testutil.ToFloat64(m.LLMCostUSD.WithLabelValues("anthropic", "claude-sonnet-4")); got != 1 {
		t.Errorf("cost = %v, want 1", got)
	}
}

func TestObserveToolExecution(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.ObserveToolExecution("fetch_logs", "success", 50*time.Millisecond)
	m.ObserveToolExecution("fetch_logs", "no_data", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("fetch_logs", "success")); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("fetch_logs", "no_data")); got != 1 {
		t.Errorf("no_data count = %v, want 1", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.ActiveSessions.Inc()
	m.ActiveSessions.Inc()
	m.ActiveSessions.Dec()

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	// Two instances must not panic with duplicate registration.
	a := NewMetricsWith(prometheus.NewRegistry())
	b := NewMetricsWith(prometheus.NewRegistry())

	a.ObserveInvestigation("success")
	if got := testutil.ToFloat64(b.InvestigationCounter.WithLabelValues("success")); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}
