package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robusta-dev/holmes/pkg/models"
)

const (
	// DefaultIdleTTL is how long a session may go untouched before the
	// sweeper evicts it.
	DefaultIdleTTL = time.Hour

	// DefaultSweepInterval is how often the sweeper checks for idle
	// sessions.
	DefaultSweepInterval = 5 * time.Minute

	// maxMessagesPerSession caps stored history per session. Older
	// messages beyond the cap are dropped from the front, except the
	// leading system message which always survives.
	maxMessagesPerSession = 1000
)

// MemoryConfig configures the in-memory store.
type MemoryConfig struct {
	// IdleTTL is the eviction threshold. Zero means DefaultIdleTTL;
	// negative disables eviction.
	IdleTTL time.Duration

	// Logger receives eviction diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// MemoryStore is an in-memory Store and Locker. Sessions idle longer
// than the TTL are evicted by the sweeper; their next use starts a
// fresh conversation under the same ID.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	locks    map[string]*sessionLock
	config   MemoryConfig
}

type sessionLock struct {
	held bool
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(config MemoryConfig) *MemoryStore {
	if config.IdleTTL == 0 {
		config.IdleTTL = DefaultIdleTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		locks:    map[string]*sessionLock{},
		config:   config,
	}
}

// NewID returns a fresh session identifier.
func NewID() string { return uuid.NewString() }

// Get returns a copy of the session, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	session.LastAccess = time.Now()
	return cloneSession(session), nil
}

// GetOrCreate returns the session, creating an empty one if needed.
func (m *MemoryStore) GetOrCreate(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	session, ok := m.sessions[id]
	if !ok {
		session = &models.Session{
			ID:        id,
			CreatedAt: now,
		}
		m.sessions[id] = session
	}
	session.LastAccess = now
	return cloneSession(session), nil
}

// Append adds messages to the session's history, creating the session
// when it does not exist.
func (m *MemoryStore) Append(ctx context.Context, id string, msgs ...*models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	session, ok := m.sessions[id]
	if !ok {
		session = &models.Session{ID: id, CreatedAt: now}
		m.sessions[id] = session
	}
	session.LastAccess = now
	session.Messages = append(session.Messages, models.CloneMessages(msgs)...)
	m.trim(session)
	return nil
}

// Replace swaps the session's entire history.
func (m *MemoryStore) Replace(ctx context.Context, id string, msgs []*models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	session, ok := m.sessions[id]
	if !ok {
		session = &models.Session{ID: id, CreatedAt: now}
		m.sessions[id] = session
	}
	session.LastAccess = now
	session.Messages = models.CloneMessages(msgs)
	m.trim(session)
	return nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len reports how many sessions the store holds.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Acquire takes the session lock without blocking. A held lock returns
// ErrSessionBusy.
func (m *MemoryStore) Acquire(id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sessionLock{}
		m.locks[id] = lock
	}
	if lock.held {
		return nil, ErrSessionBusy
	}
	lock.held = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			lock.held = false
			m.mu.Unlock()
		})
	}
	return release, nil
}

// StartSweeper runs idle-session eviction until the context is
// cancelled. It returns immediately when eviction is disabled.
func (m *MemoryStore) StartSweeper(ctx context.Context) {
	if m.config.IdleTTL < 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(DefaultSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.evictIdle()
			}
		}
	}()
}

func (m *MemoryStore) evictIdle() {
	cutoff := time.Now().Add(-m.config.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, session := range m.sessions {
		if !session.LastAccess.Before(cutoff) {
			continue
		}
		// Never evict a session mid-run.
		if lock, ok := m.locks[id]; ok && lock.held {
			continue
		}
		delete(m.sessions, id)
		delete(m.locks, id)
		m.config.Logger.Info("evicted idle session",
			"session_id", id,
			"idle_since", session.LastAccess,
			"messages", len(session.Messages),
		)
	}
}

func (m *MemoryStore) trim(session *models.Session) {
	if len(session.Messages) <= maxMessagesPerSession {
		return
	}
	excess := len(session.Messages) - maxMessagesPerSession
	if len(session.Messages) > 0 && session.Messages[0] != nil && session.Messages[0].Role == models.RoleSystem {
		kept := make([]*models.Message, 0, maxMessagesPerSession)
		kept = append(kept, session.Messages[0])
		kept = append(kept, session.Messages[excess+1:]...)
		session.Messages = kept
		return
	}
	session.Messages = session.Messages[excess:]
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	clone.Messages = models.CloneMessages(session.Messages)
	return &clone
}
