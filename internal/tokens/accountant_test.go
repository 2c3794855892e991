package tokens

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/robusta-dev/holmes/pkg/models"
)

const testModel = "claude-sonnet-4-20250514"

func TestCountTextDeterministic(t *testing.T) {
	a := NewAccountant(testModel)
	text := "the checkout pod is crash-looping in namespace prod"
	first := a.CountText(text)
	if first == 0 {
		t.Fatal("CountText returned 0 for non-empty text")
	}
	for i := 0; i < 5; i++ {
		if got := a.CountText(text); got != first {
			t.Fatalf("count changed between calls: %d != %d", got, first)
		}
	}
	if a.CountText("") != 0 {
		t.Error("empty string should count 0")
	}
}

func TestCountMessagesAdditive(t *testing.T) {
	a := NewAccountant(testModel)
	msgs := []*models.Message{
		{Role: models.RoleSystem, Content: "you are an agent"},
		{Role: models.RoleUser, Content: "why is the pod pending?"},
		{Role: models.RoleAssistant, Content: "checking", ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "fetch_logs", Arguments: []byte(`{"pod":"api-0"}`)},
		}},
		{Role: models.RoleTool, Content: "OOMKilled", ToolName: "fetch_logs"},
		nil,
	}

	sum := 0
	for _, m := range msgs {
		sum += a.CountMessage(m)
	}
	b := a.CountMessages(msgs)
	if b.Total != sum {
		t.Errorf("Total = %d, sum of CountMessage = %d", b.Total, sum)
	}
	if b.System == 0 || b.User == 0 || b.Assistant == 0 || b.Tool == 0 {
		t.Errorf("breakdown has empty buckets: %+v", b)
	}
	if b.ToolCall == 0 {
		t.Error("tool call arguments not counted")
	}
	if got := b.System + b.User + b.Assistant + b.Tool; got != b.Total {
		t.Errorf("role buckets sum to %d, total is %d", got, b.Total)
	}
}

func TestToolCallsCostTokens(t *testing.T) {
	a := NewAccountant(testModel)
	bare := &models.Message{Role: models.RoleAssistant, Content: "checking"}
	withCall := &models.Message{Role: models.RoleAssistant, Content: "checking", ToolCalls: []models.ToolCall{
		{ID: "c1", Name: "fetch_logs", Arguments: []byte(`{"pod":"api-0","container":"main"}`)},
	}}
	if a.CountMessage(withCall) <= a.CountMessage(bare) {
		t.Error("message with tool call should cost more than without")
	}
}

func TestAvailable(t *testing.T) {
	t.Setenv(EnvContextWindow, "1000")
	t.Setenv(EnvMaxOutput, "200")
	a := NewAccountant(testModel)

	msgs := []*models.Message{{Role: models.RoleUser, Content: "hello there"}}
	used := a.CountMessages(msgs).Total
	want := 1000 - used - 200 - 50
	if got := a.Available(msgs, 50); got != want {
		t.Errorf("Available = %d, want %d", got, want)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvContextWindow, "4242")
	t.Setenv(EnvMaxOutput, "99")
	a := NewAccountant(testModel)
	if a.ContextWindow() != 4242 || a.MaxOutput() != 99 {
		t.Errorf("window/output = %d/%d, want 4242/99", a.ContextWindow(), a.MaxOutput())
	}

	t.Setenv(EnvContextWindow, "not a number")
	t.Setenv(EnvMaxOutput, "-5")
	b := NewAccountant(testModel)
	limits := LimitsFor(testModel)
	if b.ContextWindow() != limits.ContextWindow || b.MaxOutput() != limits.MaxOutput {
		t.Error("invalid env overrides should fall back to the model table")
	}
}

func TestLimitsForPrefixMatch(t *testing.T) {
	dated := LimitsFor("claude-sonnet-4-20250514")
	family := LimitsFor("claude-sonnet-4")
	if dated != family {
		t.Errorf("dated snapshot = %+v, family = %+v", dated, family)
	}

	unknown := LimitsFor("some-future-model")
	if unknown != defaultLimits {
		t.Errorf("unknown model = %+v, want defaults", unknown)
	}

	// Longest prefix wins: gpt-4o-mini must not resolve to gpt-4o.
	if LimitsFor("gpt-4o-mini-2024-07-18") != modelTable["gpt-4o-mini"] {
		t.Error("gpt-4o-mini snapshot resolved to the wrong family")
	}
}

func TestCost(t *testing.T) {
	a := NewAccountant("claude-sonnet-4")
	// 3 USD/MTok in, 15 USD/MTok out.
	got := a.Cost(1_000_000, 1_000_000)
	if got != 18 {
		t.Errorf("Cost = %v, want 18", got)
	}
	if a.Cost(0, 0) != 0 {
		t.Error("zero usage should cost nothing")
	}

	unknown := NewAccountant("some-future-model")
	if unknown.Cost(1000, 1000) != 0 {
		t.Error("unknown pricing should report 0")
	}
}

func TestApproximateCountingWithoutEncoder(t *testing.T) {
	// The shape NewAccountant produces when no BPE vocabulary could be
	// loaded, e.g. without network access to fetch one. Counting must
	// stay deterministic instead of failing.
	a := &Accountant{
		model:         testModel,
		limits:        defaultLimits,
		contextWindow: defaultLimits.ContextWindow,
		maxOutput:     defaultLimits.MaxOutput,
	}

	if got := a.CountText(""); got != 0 {
		t.Errorf("CountText(\"\") = %d", got)
	}
	text := "the checkout pod is crash-looping in namespace prod"
	first := a.CountText(text)
	if first == 0 {
		t.Fatal("CountText returned 0 for non-empty text")
	}
	for i := 0; i < 5; i++ {
		if got := a.CountText(text); got != first {
			t.Fatalf("count changed between calls: %d != %d", got, first)
		}
	}

	t.Run("truncate honors budget", func(t *testing.T) {
		s := strings.Repeat("log entry with details. ", 200)
		kept, removed := a.TruncateToTokens(s, 50)
		if removed == 0 {
			t.Fatal("nothing removed")
		}
		if got := a.CountText(kept); got > 50 {
			t.Errorf("kept %d tokens, want <= 50", got)
		}
		if len(kept)+removed != len(s) {
			t.Errorf("kept %d + removed %d != original %d", len(kept), removed, len(s))
		}
		if kept, removed := a.TruncateToTokens("short", 100); kept != "short" || removed != 0 {
			t.Errorf("under-budget text changed: %q, %d", kept, removed)
		}
	})

	t.Run("multibyte stays valid", func(t *testing.T) {
		s := strings.Repeat("ナマスペースの調査結果。", 100)
		kept, _ := a.TruncateToTokens(s, 30)
		if !utf8.ValidString(kept) {
			t.Errorf("kept prefix is not valid UTF-8: %q", kept)
		}
	})
}

func TestTruncateToTokens(t *testing.T) {
	a := NewAccountant(testModel)

	t.Run("under budget unchanged", func(t *testing.T) {
		s := "short text"
		kept, removed := a.TruncateToTokens(s, 100)
		if kept != s || removed != 0 {
			t.Errorf("got %q, %d", kept, removed)
		}
	})

	t.Run("cuts to budget", func(t *testing.T) {
		s := strings.Repeat("log entry with details. ", 200)
		kept, removed := a.TruncateToTokens(s, 50)
		if removed == 0 {
			t.Fatal("nothing removed")
		}
		if got := a.CountText(kept); got > 50 {
			t.Errorf("kept %d tokens, want <= 50", got)
		}
		if len(kept)+removed != len(s) {
			t.Errorf("kept %d + removed %d != original %d", len(kept), removed, len(s))
		}
	})

	t.Run("zero budget", func(t *testing.T) {
		kept, removed := a.TruncateToTokens("abc", 0)
		if kept != "" || removed != 3 {
			t.Errorf("got %q, %d", kept, removed)
		}
	})

	t.Run("multibyte stays valid", func(t *testing.T) {
		s := strings.Repeat("ナマスペースの調査結果。", 100)
		kept, _ := a.TruncateToTokens(s, 30)
		if !utf8.ValidString(kept) {
			t.Errorf("kept prefix is not valid UTF-8: %q", kept)
		}
	})
}
