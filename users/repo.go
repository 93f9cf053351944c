package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-task-auth/internal/errors"
)

var (
	// ErrNotFound is returned when no user matches. Other errors are infrastructure failures.
	ErrNotFound = apperrors.ErrUserNotFound
	// ErrEmailTaken is returned by Create when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// UserRepo is the contract the auth core needs from user persistence. Create
// is used by bootstrap only; authentication writes the last two fields.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateLastAuthenticated(ctx context.Context, id uuid.UUID, at time.Time) error
	SetEncryptedCredential(ctx context.Context, id uuid.UUID, encrypted string) error
}
