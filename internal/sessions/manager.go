package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robusta-dev/holmes/pkg/models"
)

// Manager prepares message lists for agent runs and writes results
// back, holding the session lock for the duration of the run.
type Manager struct {
	store  Store
	locker Locker
	logger *slog.Logger
}

// NewManager creates a session manager over the given store. When the
// store also implements Locker (MemoryStore does), it is used for run
// serialization.
func NewManager(store Store, locker Locker, logger *slog.Logger) *Manager {
	if locker == nil {
		if l, ok := store.(Locker); ok {
			locker = l
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, locker: locker, logger: logger}
}

// Run is one locked agent run over a session. Exactly one of Commit or
// Abort must be called.
type Run struct {
	// ID is the session identifier, generated when the caller supplied
	// none.
	ID string

	// Messages is the prepared conversation: stored history plus the new
	// user ask, with the system prompt in front on first contact.
	Messages []*models.Message

	mgr     *Manager
	release func()
}

// Begin locks the session and prepares the message list for a run.
//
// An empty sessionID starts a fresh session under a generated ID. A
// session already running returns ErrSessionBusy immediately.
func (m *Manager) Begin(ctx context.Context, sessionID, systemPrompt, ask string) (*Run, error) {
	if sessionID == "" {
		sessionID = NewID()
	}

	var release func()
	if m.locker != nil {
		var err error
		release, err = m.locker.Acquire(sessionID)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
	}

	session, err := m.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, err
	}

	now := time.Now()
	messages := session.Messages
	if len(messages) == 0 {
		messages = append(messages, &models.Message{
			Role:      models.RoleSystem,
			Content:   systemPrompt,
			CreatedAt: now,
		})
	}
	messages = append(messages, &models.Message{
		Role:      models.RoleUser,
		Content:   ask,
		CreatedAt: now,
	})

	return &Run{ID: sessionID, Messages: messages, mgr: m, release: release}, nil
}

// Commit writes the run's final history back and releases the session.
// The final history replaces the stored one wholesale: compaction may
// have rewritten earlier messages, so an append is not enough.
func (r *Run) Commit(ctx context.Context, history []*models.Message) error {
	defer r.Abort()
	return r.mgr.store.Replace(ctx, r.ID, history)
}

// Abort releases the session without writing. Safe to call after
// Commit; the lock releases only once.
func (r *Run) Abort() {
	if r.release != nil {
		r.release()
	}
}

// History returns a copy of the session's stored messages.
func (m *Manager) History(ctx context.Context, id string) ([]*models.Message, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.Messages, nil
}

// Clear deletes the session's history.
func (m *Manager) Clear(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
