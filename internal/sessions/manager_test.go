package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/robusta-dev/holmes/pkg/models"
)

func TestBeginFirstContactPrependsSystemPrompt(t *testing.T) {
	mgr := NewManager(NewMemoryStore(MemoryConfig{}), nil, nil)

	run, err := mgr.Begin(context.Background(), "s1", "you are an agent", "why is checkout failing?")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()

	if run.ID != "s1" {
		t.Errorf("ID = %q, want s1", run.ID)
	}
	if len(run.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(run.Messages))
	}
	if run.Messages[0].Role != models.RoleSystem || run.Messages[0].Content != "you are an agent" {
		t.Errorf("system message = %+v", run.Messages[0])
	}
	if run.Messages[1].Role != models.RoleUser || run.Messages[1].Content != "why is checkout failing?" {
		t.Errorf("user message = %+v", run.Messages[1])
	}
}

func TestBeginGeneratesIDWhenEmpty(t *testing.T) {
	mgr := NewManager(NewMemoryStore(MemoryConfig{}), nil, nil)

	run, err := mgr.Begin(context.Background(), "", "prompt", "ask")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()

	if run.ID == "" {
		t.Error("no session ID generated")
	}
}

func TestBeginExistingSessionAppendsAskOnly(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{})
	mgr := NewManager(store, nil, nil)
	ctx := context.Background()

	first, err := mgr.Begin(ctx, "s1", "prompt", "first question")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	history := append(first.Messages, &models.Message{Role: models.RoleAssistant, Content: "first answer"})
	if err := first.Commit(ctx, history); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	second, err := mgr.Begin(ctx, "s1", "prompt", "follow-up")
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	defer second.Abort()

	if len(second.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(second.Messages))
	}
	// No second system prompt.
	for i, m := range second.Messages[1:] {
		if m.Role == models.RoleSystem {
			t.Errorf("duplicate system message at %d", i+1)
		}
	}
	if last := second.Messages[3]; last.Role != models.RoleUser || last.Content != "follow-up" {
		t.Errorf("last message = %+v", last)
	}
}

func TestBeginBusySession(t *testing.T) {
	mgr := NewManager(NewMemoryStore(MemoryConfig{}), nil, nil)
	ctx := context.Background()

	run, err := mgr.Begin(ctx, "s1", "prompt", "long investigation")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()

	if _, err := mgr.Begin(ctx, "s1", "prompt", "impatient retry"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("concurrent Begin: err = %v, want ErrSessionBusy", err)
	}

	// A different session is not blocked.
	other, err := mgr.Begin(ctx, "s2", "prompt", "unrelated")
	if err != nil {
		t.Fatalf("Begin other session: %v", err)
	}
	other.Abort()
}

func TestCommitReplacesHistory(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{})
	mgr := NewManager(store, nil, nil)
	ctx := context.Background()

	store.Replace(ctx, "s1", []*models.Message{
		{Role: models.RoleSystem, Content: "prompt"},
		{Role: models.RoleUser, Content: "old question"},
		{Role: models.RoleAssistant, Content: "old answer"},
	})

	run, err := mgr.Begin(ctx, "s1", "prompt", "new question")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// A compacted run commits fewer messages than it started with.
	compacted := []*models.Message{
		{Role: models.RoleSystem, Content: "prompt"},
		{Role: models.RoleAssistant, Content: "summary of everything so far"},
	}
	if err := run.Commit(ctx, compacted); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	history, err := mgr.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[1].Content != "summary of everything so far" {
		t.Errorf("history = %+v", history)
	}
}

func TestCommitReleasesLock(t *testing.T) {
	mgr := NewManager(NewMemoryStore(MemoryConfig{}), nil, nil)
	ctx := context.Background()

	run, err := mgr.Begin(ctx, "s1", "prompt", "ask")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := run.Commit(ctx, run.Messages); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	run.Abort() // safe after Commit

	again, err := mgr.Begin(ctx, "s1", "prompt", "next")
	if err != nil {
		t.Fatalf("Begin after Commit: %v", err)
	}
	again.Abort()
}

func TestAbortDiscardsRun(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{})
	mgr := NewManager(store, nil, nil)
	ctx := context.Background()

	run, err := mgr.Begin(ctx, "s1", "prompt", "ask")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	run.Abort()
	run.Abort() // idempotent

	// Nothing was written: the next Begin sees an empty session again.
	next, err := mgr.Begin(ctx, "s1", "prompt", "ask again")
	if err != nil {
		t.Fatalf("Begin after Abort: %v", err)
	}
	defer next.Abort()
	if len(next.Messages) != 2 {
		t.Errorf("messages = %d, want fresh system + ask", len(next.Messages))
	}
}

func TestClear(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{})
	mgr := NewManager(store, nil, nil)
	ctx := context.Background()

	run, _ := mgr.Begin(ctx, "s1", "prompt", "ask")
	run.Commit(ctx, run.Messages)

	if err := mgr.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := mgr.History(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("History after Clear: err = %v, want ErrNotFound", err)
	}
}
