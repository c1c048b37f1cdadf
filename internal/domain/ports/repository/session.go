package repository

import (
	"context"
	"time"

	"pizza-order-bot/internal/domain/model"
)

// SessionStore persists conversation state per channel-qualified user.
// A missing or unrecognized state tag reads as model.StateStart.
type SessionStore interface {
	Get(ctx context.Context, key model.SessionKey) (model.State, bool, error)
	Set(ctx context.Context, key model.SessionKey, state model.State) error
	GetField(ctx context.Context, key model.SessionKey, field string) (string, bool, error)
	SetField(ctx context.Context, key model.SessionKey, field, value string) error

	// Load returns the whole session, a fresh one when nothing is stored.
	Load(ctx context.Context, key model.SessionKey) (*model.Session, error)
	// Save writes state and all auxiliary fields and refreshes the TTL.
	Save(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, key model.SessionKey) error
}

// Locker serializes work on one key across processes.
type Locker interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// EventDeduper remembers processed delivery ids for a bounded window.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}
