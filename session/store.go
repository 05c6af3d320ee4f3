package session

import (
	"context"
	"time"
)

// Store persists session records keyed by Session.ID.
//
// GetSession returns storage.ErrNotFound (or an error wrapping it) for unknown ids.
// Deletes are idempotent.
type Store interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}
