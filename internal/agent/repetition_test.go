package agent

import (
	"strings"
	"testing"
)

func TestRepetitionGuardCap(t *testing.T) {
	g := newRepetitionGuard(2)
	args := rawArgs(`{"pod":"api-0"}`)

	if !g.allow("fetch_logs", args) {
		t.Error("first call refused")
	}
	if !g.allow("fetch_logs", args) {
		t.Error("second call refused")
	}
	if g.allow("fetch_logs", args) {
		t.Error("third identical call allowed past cap 2")
	}
}

func TestRepetitionGuardCanonicalization(t *testing.T) {
	g := newRepetitionGuard(1)
	if !g.allow("probe", rawArgs(`{"a":1,"b":"x"}`)) {
		t.Fatal("first call refused")
	}
	// Different key order and whitespace, same call.
	if g.allow("probe", rawArgs(`{ "b" : "x", "a" : 1 }`)) {
		t.Error("reordered identical arguments treated as distinct")
	}
	// Genuinely different arguments pass.
	if !g.allow("probe", rawArgs(`{"a":2,"b":"x"}`)) {
		t.Error("distinct arguments refused")
	}
	// Same arguments on a different tool pass.
	if !g.allow("other", rawArgs(`{"a":1,"b":"x"}`)) {
		t.Error("different tool refused")
	}
}

func TestRepetitionGuardNestedArguments(t *testing.T) {
	g := newRepetitionGuard(1)
	if !g.allow("q", rawArgs(`{"filter":{"ns":"prod","labels":["a","b"]}}`)) {
		t.Fatal("first call refused")
	}
	if g.allow("q", rawArgs(`{"filter":{"labels":["a","b"],"ns":"prod"}}`)) {
		t.Error("nested key order treated as distinct")
	}
	if !g.allow("q", rawArgs(`{"filter":{"ns":"prod","labels":["b","a"]}}`)) {
		t.Error("array order is significant and must count as distinct")
	}
}

func TestRepetitionGuardInvalidJSON(t *testing.T) {
	g := newRepetitionGuard(1)
	if !g.allow("raw", rawArgs(`not json`)) {
		t.Fatal("first call refused")
	}
	if g.allow("raw", rawArgs(`not json`)) {
		t.Error("identical undecodable arguments treated as distinct")
	}
}

func TestRepetitionGuardRefusalError(t *testing.T) {
	g := newRepetitionGuard(3)
	msg := g.refusalError("fetch_logs")
	if !strings.Contains(msg, "repetition") || !strings.Contains(msg, "fetch_logs") || !strings.Contains(msg, "3") {
		t.Errorf("refusal = %q", msg)
	}
}

func TestRepetitionGuardDefaultCap(t *testing.T) {
	g := newRepetitionGuard(0)
	if g.cap != DefaultRepetitionCap {
		t.Errorf("cap = %d, want default %d", g.cap, DefaultRepetitionCap)
	}
}

func TestRepetitionGuardDisabled(t *testing.T) {
	g := newRepetitionGuard(-1)
	args := rawArgs(`{"x":1}`)
	for i := 0; i < 10; i++ {
		if !g.allow("probe", args) {
			t.Fatalf("call %d refused with guard disabled", i)
		}
	}
}
