package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/rs/zerolog/log"
)

// ToolToken is the result of a handshake. Token is shown to the caller once.
type ToolToken struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	SessionID uuid.UUID `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handshake exchanges an authenticated user for a tool invocation token.
type Handshake struct {
	service   *auth.Service
	ephemeral *EphemeralTokens
}

// NewHandshake builds a handshake. With a nil ephemeral table, issued tokens
// are accepted only through the signed-token path.
func NewHandshake(service *auth.Service, ephemeral *EphemeralTokens) *Handshake {
	return &Handshake{service: service, ephemeral: ephemeral}
}

// Issue creates a tool invocation session for user and registers its token in
// the ephemeral table until the session expires. The token is also a signed
// token, so it keeps working in processes that do not share this table.
func (h *Handshake) Issue(ctx context.Context, user *users.User, clientInfo *string) (*ToolToken, error) {
	if !user.IsWhitelisted {
		return nil, fmt.Errorf("[Handshake.Issue] %w", auth.ErrNotWhitelisted)
	}
	issued, err := h.service.IssueSession(ctx, user, sessions.KindToolInvocation, clientInfo)
	if err != nil {
		return nil, fmt.Errorf("[Handshake.Issue] %w", err)
	}
	if h.ephemeral != nil {
		h.ephemeral.Put(issued.Token, user.ID, issued.Session.ExpiresAt)
	}

	log.Info().Str("user_id", user.ID.String()).Str("session_id", issued.Session.ID.String()).Msg("Tool token issued")
	return &ToolToken{
		Token:     issued.Token,
		TokenType: "Bearer",
		SessionID: issued.Session.ID,
		ExpiresAt: issued.Session.ExpiresAt,
	}, nil
}

// Revoke ends a tool session and forgets its token.
func (h *Handshake) Revoke(ctx context.Context, raw string, session *sessions.Session) error {
	if h.ephemeral != nil {
		h.ephemeral.Delete(raw)
	}
	return h.service.Logout(ctx, session)
}

type issueRequest struct {
	ClientInfo string `json:"client_info,omitempty"`
}

// IssueHandler serves the handshake over HTTP. It must sit behind
// auth.Gate.RequireAuth; only web sessions may mint a tool token.
func (h *Handshake) IssueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			auth.WriteError(w, auth.ErrUnauthorized)
			return
		}
		if identity.Session.Kind != sessions.KindWeb {
			auth.WriteJSONError(w, http.StatusForbidden, auth.ErrorForbidden, "Tool tokens are issued to web sessions only")
			return
		}

		var req issueRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
				auth.WriteJSONError(w, http.StatusBadRequest, auth.ErrorInvalidRequest, "Request body must be valid JSON")
				return
			}
		}
		info := strings.TrimSpace(req.ClientInfo)
		if info == "" {
			info = r.UserAgent()
		}
		var clientInfo *string
		if info != "" {
			clientInfo = &info
		}

		tok, err := h.Issue(r.Context(), identity.User, clientInfo)
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		auth.WriteJSON(w, http.StatusCreated, tok)
	}
}
