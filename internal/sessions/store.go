// Package sessions persists conversation history between agent runs and
// serializes concurrent access to each session.
package sessions

import (
	"context"
	"errors"

	"github.com/robusta-dev/holmes/pkg/models"
)

var (
	// ErrNotFound indicates the session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrSessionBusy indicates another run currently holds the session.
	ErrSessionBusy = errors.New("session is busy")
)

// Store persists sessions and their message history. Implementations
// must be safe for concurrent use and must never hand out references to
// their internal message slices.
type Store interface {
	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Session, error)

	// GetOrCreate returns the session with the given ID, creating an
	// empty one when it does not exist.
	GetOrCreate(ctx context.Context, id string) (*models.Session, error)

	// Append adds messages to the end of the session's history.
	Append(ctx context.Context, id string, msgs ...*models.Message) error

	// Replace swaps the session's entire history. Used after compaction,
	// where the committed history is shorter than what ran.
	Replace(ctx context.Context, id string, msgs []*models.Message) error

	// Delete removes the session, releasing its history.
	Delete(ctx context.Context, id string) error

	// Len reports how many sessions the store currently holds.
	Len() int
}

// Locker serializes runs on the same session. Acquire fails fast with
// ErrSessionBusy rather than queueing, so a caller retrying a slow
// investigation gets an immediate answer.
type Locker interface {
	// Acquire takes the session lock and returns its release function.
	Acquire(id string) (release func(), err error)
}
