// Package sessionstest holds the behavioural contract every sessions.Repo
// implementation must satisfy.
package sessionstest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/stretchr/testify/require"
)

// RunRepoContract exercises newRepo against the sessions.Repo contract.
// newRepo must return an empty store for every call.
func RunRepoContract(t *testing.T, newRepo func(t *testing.T) sessions.Repo) {
	t.Helper()
	ctx := context.Background()

	makeSession := func(token string, kind sessions.Kind, expiresAt time.Time) *sessions.Session {
		client := "contract-test"
		s := sessions.New(uuid.New(), kind, &client)
		s.TokenHash = sessions.HashToken(token)
		s.ExpiresAt = expiresAt.UTC()
		return s
	}

	t.Run("create then find by hash", func(t *testing.T) {
		repo := newRepo(t)
		s := makeSession("token-a", sessions.KindWeb, time.Now().Add(time.Hour))
		require.NoError(t, repo.Create(ctx, s))

		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.Equal(t, s.ID, got.ID)
		require.Equal(t, s.UserID, got.UserID)
		require.Equal(t, s.Kind, got.Kind)
		require.Equal(t, s.TokenHash, got.TokenHash)
		require.NotNil(t, got.ClientInfo)
		require.Equal(t, "contract-test", *got.ClientInfo)
		require.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Millisecond)

		valid, err := repo.GetValidByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.Equal(t, s.ID, valid.ID)
	})

	t.Run("unknown hash is not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByTokenHash(ctx, sessions.HashToken("nope"))
		require.ErrorIs(t, err, sessions.ErrNotFound)
		_, err = repo.GetValidByTokenHash(ctx, sessions.HashToken("nope"))
		require.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("expired session is hidden from valid lookup only", func(t *testing.T) {
		repo := newRepo(t)
		s := makeSession("token-expired", sessions.KindToolInvocation, time.Now().Add(-time.Second))
		require.NoError(t, repo.Create(ctx, s))

		_, err := repo.GetValidByTokenHash(ctx, s.TokenHash)
		require.ErrorIs(t, err, sessions.ErrNotFound)

		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.Equal(t, s.ID, got.ID)
	})

	t.Run("extend expiry revives lookup", func(t *testing.T) {
		repo := newRepo(t)
		s := makeSession("token-extend", sessions.KindWeb, time.Now().Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, s))

		newExpiry := time.Now().Add(2 * time.Hour).UTC()
		require.NoError(t, repo.ExtendExpiry(ctx, s.ID, newExpiry))

		got, err := repo.GetValidByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.WithinDuration(t, newExpiry, got.ExpiresAt, time.Millisecond)

		require.ErrorIs(t, repo.ExtendExpiry(ctx, uuid.New(), newExpiry), sessions.ErrNotFound)
	})

	t.Run("delete removes session", func(t *testing.T) {
		repo := newRepo(t)
		s := makeSession("token-delete", sessions.KindWeb, time.Now().Add(time.Hour))
		require.NoError(t, repo.Create(ctx, s))
		require.NoError(t, repo.Delete(ctx, s.ID))

		_, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.ErrorIs(t, err, sessions.ErrNotFound)
		require.ErrorIs(t, repo.Delete(ctx, s.ID), sessions.ErrNotFound)
	})

	t.Run("delete expired sweeps only expired sessions", func(t *testing.T) {
		repo := newRepo(t)
		live := makeSession("token-live", sessions.KindWeb, time.Now().Add(time.Hour))
		dead1 := makeSession("token-dead-1", sessions.KindWeb, time.Now().Add(-time.Hour))
		dead2 := makeSession("token-dead-2", sessions.KindToolInvocation, time.Now().Add(-time.Second))
		for _, s := range []*sessions.Session{live, dead1, dead2} {
			require.NoError(t, repo.Create(ctx, s))
		}

		removed, err := repo.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), removed)

		_, err = repo.GetByTokenHash(ctx, dead1.TokenHash)
		require.ErrorIs(t, err, sessions.ErrNotFound)
		_, err = repo.GetByTokenHash(ctx, dead2.TokenHash)
		require.ErrorIs(t, err, sessions.ErrNotFound)
		_, err = repo.GetValidByTokenHash(ctx, live.TokenHash)
		require.NoError(t, err)
	})
}
