package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-task-auth/internal/errors"
)

// ErrNotFound is returned when no session matches. Any other error from a
// Repo is an infrastructure failure.
var ErrNotFound = apperrors.ErrSessionNotFound

// Repo is the storage contract for sessions.
type Repo interface {
	// Create stores a new session
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash returns the session for a digest, expired or not
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// GetValidByTokenHash returns the session for a digest only if it has not expired
	GetValidByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// ExtendExpiry moves a session's expiry to expiresAt
	ExtendExpiry(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error

	// Delete removes a session (logout)
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteExpired removes every session whose expiry has passed and reports how many were removed
	DeleteExpired(ctx context.Context) (int64, error)
}
