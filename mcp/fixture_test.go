package mcp_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/mcp"
	"github.com/jrsteele09/go-task-auth/sessions"
	fakesessionrepo "github.com/jrsteele09/go-task-auth/sessions/repofakes"
	"github.com/jrsteele09/go-task-auth/token"
	"github.com/jrsteele09/go-task-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-task-auth/users/repofake"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "test-signing-secret-0123456789abcdef"
	testBaseURL = "https://tasks.example.com"
)

var errStoreDown = errors.New("connection refused")

// testFixture holds all test dependencies
type testFixture struct {
	userRepo    *fakeuserrepo.FakeUserRepo
	sessionRepo *fakesessionrepo.FakeSessionRepo
	vault       *vault.Vault
	authService *auth.Service
	ephemeral   *mcp.EphemeralTokens
	gate        *mcp.Gate
	handshake   *mcp.Handshake
	service     *mcp.Service
	user        *users.User
}

func setupTestFixture(t *testing.T, opts ...mcp.GateOption) *testFixture {
	t.Helper()

	ur := fakeuserrepo.NewFakeUserRepo()
	sr := fakesessionrepo.NewFakeSessionRepo()
	tm, err := token.NewManager(testSecret)
	require.NoError(t, err)
	v, err := vault.NewWithKey(make([]byte, vault.KeySize))
	require.NoError(t, err)

	user := &users.User{Email: "agent.owner@example.com", DisplayName: "Agent Owner", IsWhitelisted: true}
	ur.Upsert(user)

	repos := auth.Repos{Users: ur, Sessions: sr}
	authService := auth.NewService(tm, repos)
	ephemeral := mcp.NewEphemeralTokens()
	return &testFixture{
		userRepo:    ur,
		sessionRepo: sr,
		vault:       v,
		authService: authService,
		ephemeral:   ephemeral,
		gate:        mcp.NewGate(ephemeral, auth.NewGate(tm, repos), repos, opts...),
		handshake:   mcp.NewHandshake(authService, ephemeral),
		service:     mcp.NewService("task-auth", "test", ur, v),
		user:        user,
	}
}

// issueToolToken runs the handshake for the fixture user.
func (f *testFixture) issueToolToken(t *testing.T) *mcp.ToolToken {
	t.Helper()
	tok, err := f.handshake.Issue(context.Background(), f.user, nil)
	require.NoError(t, err)
	return tok
}

// storeOpaqueToken creates a session keyed by a random non-signed token, which
// only the ephemeral path can accept.
func (f *testFixture) storeOpaqueToken(t *testing.T, kind sessions.Kind) (string, *sessions.Session) {
	t.Helper()
	buf := make([]byte, 32)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	raw := hex.EncodeToString(buf)

	session := sessions.New(f.user.ID, kind, nil)
	session.TokenHash = sessions.HashToken(raw)
	require.NoError(t, f.sessionRepo.Create(context.Background(), session))
	return raw, session
}
