package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/sessions"
	fakesessionrepo "github.com/jrsteele09/go-task-auth/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	require.Equal(t, 24*time.Hour, sessions.KindWeb.DefaultLifetime())
	require.Equal(t, 30*24*time.Hour, sessions.KindToolInvocation.DefaultLifetime())

	k, err := sessions.ParseKind("mcp")
	require.NoError(t, err)
	require.Equal(t, sessions.KindToolInvocation, k)

	_, err = sessions.ParseKind("Web")
	require.Error(t, err)
}

func TestHashToken(t *testing.T) {
	// sha256("abc")
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sessions.HashToken("abc"))
	require.NotEqual(t, sessions.HashToken("a"), sessions.HashToken("b"))
}

func TestNew(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sessions.NowTimeFunc = func() time.Time { return fixed }
	defer func() { sessions.NowTimeFunc = time.Now }()

	userID := uuid.New()
	s := sessions.New(userID, sessions.KindToolInvocation, nil)
	require.NotEqual(t, uuid.Nil, s.ID)
	require.Equal(t, userID, s.UserID)
	require.Equal(t, fixed, s.CreatedAt)
	require.Equal(t, fixed.Add(sessions.ToolInvocationLifetime), s.ExpiresAt)
	require.Empty(t, s.TokenHash)

	require.False(t, s.IsExpired(fixed))
	require.True(t, s.IsExpired(s.ExpiresAt))
}

func TestSweepExpired(t *testing.T) {
	repo := fakesessionrepo.NewFakeSessionRepo()
	ctx := context.Background()

	expired := sessions.New(uuid.New(), sessions.KindWeb, nil)
	expired.TokenHash = sessions.HashToken("old")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	live := sessions.New(uuid.New(), sessions.KindWeb, nil)
	live.TokenHash = sessions.HashToken("new")
	require.NoError(t, repo.Create(ctx, expired))
	require.NoError(t, repo.Create(ctx, live))

	sessions.SweepExpired(ctx, repo)
	require.Equal(t, 1, repo.Count())
}

func TestStartExpirySweeper_StopsOnCancel(t *testing.T) {
	repo := fakesessionrepo.NewFakeSessionRepo()
	ctx, cancel := context.WithCancel(context.Background())

	expired := sessions.New(uuid.New(), sessions.KindWeb, nil)
	expired.TokenHash = sessions.HashToken("old")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, expired))

	done := sessions.StartExpirySweeper(ctx, repo, 5*time.Millisecond)
	require.Eventually(t, func() bool { return repo.Count() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
