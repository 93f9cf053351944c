package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/internal/config"
	"github.com/jrsteele09/go-task-auth/mcp"
	"github.com/jrsteele09/go-task-auth/sessions"
	fakesessionrepo "github.com/jrsteele09/go-task-auth/sessions/repofakes"
	"github.com/jrsteele09/go-task-auth/server"
	"github.com/jrsteele09/go-task-auth/token"
	"github.com/jrsteele09/go-task-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-task-auth/users/repofake"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-signing-secret-0123456789abcdef"
	testBaseURL  = "https://tasks.example.com"
	testEmail    = "jane.doe@example.com"
	testPassword = "Password123"
)

// testFixture holds all test dependencies
type testFixture struct {
	server      *server.Server
	userRepo    *fakeuserrepo.FakeUserRepo
	sessionRepo *fakesessionrepo.FakeSessionRepo
	tokens      *token.Manager
	repos       auth.Repos
	user        *users.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	cfg := config.New(
		config.EnvVars{Env: "TEST", BaseURL: testBaseURL + "/"},
		config.Security{SigningSecret: testSecret},
		config.Transport{},
		config.Store{},
	)
	ur := fakeuserrepo.NewFakeUserRepo()
	sr := fakesessionrepo.NewFakeSessionRepo()
	tm, err := token.NewManager(testSecret)
	require.NoError(t, err)
	v, err := vault.New(cfg)
	require.NoError(t, err)

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	user := &users.User{Email: testEmail, DisplayName: "Jane", PasswordHash: hash, IsWhitelisted: true}
	ur.Upsert(user)

	repos := auth.Repos{Users: ur, Sessions: sr}
	s, err := server.New(cfg, repos, tm, v)
	require.NoError(t, err)

	return &testFixture{server: s, userRepo: ur, sessionRepo: sr, tokens: tm, repos: repos, user: user}
}

func (f *testFixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) login(t *testing.T) server.TokenResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, server.RouteLogin, "", server.LoginRequest{Email: testEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp server.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthAndMetadata(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, server.RouteHealth, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, server.RouteProtectedResource, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	var meta mcp.ProtectedResourceMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	require.Equal(t, testBaseURL, meta.Resource)
	require.Equal(t, testBaseURL+mcp.TokenPath, meta.TokenURI)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("success", func(t *testing.T) {
		resp := f.login(t)
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, "Bearer", resp.TokenType)
		require.Equal(t, "web", resp.SessionType)
		require.WithinDuration(t, time.Now().Add(24*time.Hour), resp.ExpiresAt, 5*time.Second)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteLogin, "", server.LoginRequest{Email: testEmail, Password: "Nope12345"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"invalid_grant","error_description":"Invalid email or password"}`, rec.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteLogin, "", "{")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteLogin, "", server.LoginRequest{Email: testEmail})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad session type", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteLogin, "", server.LoginRequest{Email: testEmail, Password: testPassword, SessionType: "WEB"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not whitelisted", func(t *testing.T) {
		f.userRepo.SetWhitelisted(f.user.ID, false)
		defer f.userRepo.SetWhitelisted(f.user.ID, true)
		rec := f.do(t, http.MethodPost, server.RouteLogin, "", server.LoginRequest{Email: testEmail, Password: testPassword})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestMeAndLogout(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.login(t)

	rec := f.do(t, http.MethodGet, server.RouteMe, tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
	var me server.MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, testEmail, me.User.Email)
	require.Equal(t, tok.SessionID, me.Session.ID)

	rec = f.do(t, http.MethodGet, server.RouteMe, "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f.userRepo.SetWhitelisted(f.user.ID, false)
	rec = f.do(t, http.MethodGet, server.RouteMe, tok.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	f.userRepo.SetWhitelisted(f.user.ID, true)

	rec = f.do(t, http.MethodPost, server.RouteLogout, tok.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, f.sessionRepo.Count())

	rec = f.do(t, http.MethodGet, server.RouteMe, tok.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCredentials(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.login(t).AccessToken
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	status := func() users.CredentialStatus {
		rec := f.do(t, http.MethodGet, server.RouteCredentialStatus, tok, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotContains(t, rec.Body.String(), "ya29")
		var s users.CredentialStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
		return s
	}

	require.False(t, status().Configured)

	rec := f.do(t, http.MethodPut, server.RouteCredentials, tok, map[string]any{
		"access_token":  "ya29.a0-secret",
		"refresh_token": "1//refresh",
		"token_type":    "Bearer",
		"expiry":        expiry,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := f.userRepo.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.True(t, stored.HasCredential())
	require.NotContains(t, stored.EncryptedCredential, "ya29")

	s := status()
	require.True(t, s.Configured)
	require.False(t, s.Expired)
	require.True(t, expiry.Equal(*s.ExpiresAt))

	rec = f.do(t, http.MethodPut, server.RouteCredentials, tok, map[string]any{"token_type": "Bearer"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, server.RouteCredentials, tok, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, status().Configured)

	t.Run("corrupt stored credential", func(t *testing.T) {
		require.NoError(t, f.userRepo.SetEncryptedCredential(context.Background(), f.user.ID, "@@@"))
		rec := f.do(t, http.MethodGet, server.RouteCredentialStatus, tok, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("requires auth", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, server.RouteCredentials, "", map[string]any{"access_token": "x"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestToolToken(t *testing.T) {
	f := setupTestFixture(t)
	web := f.login(t).AccessToken

	rec := f.do(t, http.MethodPost, server.RouteToolToken, web, map[string]string{"client_info": "agent/1.0"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tool server.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tool))
	require.Equal(t, "mcp", tool.SessionType)

	// A tool process shares only the stores and the signing secret.
	toolGate := mcp.NewGate(mcp.NewEphemeralTokens(), auth.NewGate(f.tokens, f.repos), f.repos)
	identity, err := toolGate.Authenticate(context.Background(), tool.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, identity.User.ID)
	require.Equal(t, sessions.KindToolInvocation, identity.Session.Kind)

	t.Run("without body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteToolToken, web, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("tool session cannot mint tokens", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteToolToken, tool.AccessToken, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestBootstrapAdmin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	email, password, err := server.BootstrapAdmin(ctx, f.userRepo, "http://localhost:8080/app", "")
	require.NoError(t, err)
	require.Equal(t, "admin@localhost", email)
	require.NotEmpty(t, password)

	admin, err := f.userRepo.GetByEmail(ctx, email)
	require.NoError(t, err)
	require.True(t, admin.IsWhitelisted)
	require.True(t, users.CheckPasswordHash(password, admin.PasswordHash))

	again, password, err := server.BootstrapAdmin(ctx, f.userRepo, "http://localhost:8080/app", "")
	require.NoError(t, err)
	require.Equal(t, email, again)
	require.Empty(t, password)
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	handler := server.ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}, f.server.APIMiddleware()...)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
