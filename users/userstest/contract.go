// Package userstest holds the behavioural contract every users.UserRepo
// implementation must satisfy.
package userstest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/stretchr/testify/require"
)

// RunRepoContract exercises newRepo against the users.UserRepo contract.
// newRepo must return an empty store for every call.
func RunRepoContract(t *testing.T, newRepo func(t *testing.T) users.UserRepo) {
	t.Helper()
	ctx := context.Background()

	newUser := func(email string) *users.User {
		return &users.User{
			Email:         email,
			DisplayName:   "Contract User",
			PasswordHash:  "hash",
			IsWhitelisted: true,
			DateJoined:    time.Now().UTC().Truncate(time.Millisecond),
		}
	}

	t.Run("create then get", func(t *testing.T) {
		repo := newRepo(t)
		user := newUser("contract@example.com")
		require.NoError(t, repo.Create(ctx, user))
		require.NotEqual(t, uuid.Nil, user.ID)

		byID, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, user.Email, byID.Email)
		require.Equal(t, user.DisplayName, byID.DisplayName)
		require.True(t, byID.IsWhitelisted)
		require.Nil(t, byID.LastAuthenticatedAt)

		byEmail, err := repo.GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		require.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("dup@example.com")))
		require.ErrorIs(t, repo.Create(ctx, newUser("dup@example.com")), users.ErrEmailTaken)
	})

	t.Run("unknown user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, uuid.New())
		require.ErrorIs(t, err, users.ErrNotFound)
		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, users.ErrNotFound)
		require.ErrorIs(t, repo.UpdateLastAuthenticated(ctx, uuid.New(), time.Now()), users.ErrNotFound)
		require.ErrorIs(t, repo.SetEncryptedCredential(ctx, uuid.New(), "x"), users.ErrNotFound)
	})

	t.Run("updates", func(t *testing.T) {
		repo := newRepo(t)
		user := newUser("updates@example.com")
		require.NoError(t, repo.Create(ctx, user))

		at := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, repo.UpdateLastAuthenticated(ctx, user.ID, at))
		require.NoError(t, repo.SetEncryptedCredential(ctx, user.ID, "ciphertext"))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastAuthenticatedAt)
		require.WithinDuration(t, at, *got.LastAuthenticatedAt, time.Millisecond)
		require.Equal(t, "ciphertext", got.EncryptedCredential)
		require.True(t, got.HasCredential())

		require.NoError(t, repo.SetEncryptedCredential(ctx, user.ID, ""))
		got, err = repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.False(t, got.HasCredential())
	})
}
