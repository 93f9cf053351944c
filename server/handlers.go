package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/mcp"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/rs/zerolog/log"
)

const maxBodySize = 64 * 1024

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	SessionType string `json:"session_type,omitempty"` // "web" (default) or "mcp"
	ClientInfo  string `json:"client_info,omitempty"`
}

// TokenResponse carries a newly issued bearer credential.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	SessionID   uuid.UUID `json:"session_id"`
	SessionType string    `json:"session_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type sessionInfo struct {
	ID          uuid.UUID `json:"id"`
	SessionType string    `json:"session_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// MeResponse is the body of GET /api/me.
type MeResponse struct {
	User    *users.User `json:"user"`
	Session sessionInfo `json:"session"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, auth.ErrorInvalidRequest, "Request body must be valid JSON")
		return false
	}
	return true
}

// clientInfo prefers an explicit value and falls back to the User-Agent.
func clientInfo(explicit string, r *http.Request) *string {
	info := strings.TrimSpace(explicit)
	if info == "" {
		info = r.UserAgent()
	}
	if info == "" {
		return nil
	}
	return &info
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ProtectedResourceHandler serves the metadata advertised by the tool transport challenge.
func (s *Server) ProtectedResourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSON(w, http.StatusOK, mcp.NewProtectedResourceMetadata(s.config.GetBaseURL()))
	}
}

// LoginHandler exchanges an email and password for a session token
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			auth.WriteJSONError(w, http.StatusBadRequest, auth.ErrorInvalidRequest, "email and password are required")
			return
		}
		kind := sessions.KindWeb
		if req.SessionType != "" {
			parsed, err := sessions.ParseKind(req.SessionType)
			if err != nil {
				auth.WriteJSONError(w, http.StatusBadRequest, auth.ErrorInvalidRequest, "session_type must be web or mcp")
				return
			}
			kind = parsed
		}

		issued, err := s.auth.Login(r.Context(), strings.TrimSpace(req.Email), req.Password, kind, clientInfo(req.ClientInfo, r))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				auth.WriteJSONError(w, http.StatusUnauthorized, auth.ErrorInvalidGrant, "Invalid email or password")
				return
			}
			auth.WriteError(w, err)
			return
		}

		auth.WriteJSON(w, http.StatusOK, TokenResponse{
			AccessToken: issued.Token,
			TokenType:   "Bearer",
			SessionID:   issued.Session.ID,
			SessionType: string(issued.Session.Kind),
			ExpiresAt:   issued.Session.ExpiresAt,
		})
	}
}

// LogoutHandler ends the caller's session
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		if err := s.auth.Logout(r.Context(), identity.Session); err != nil {
			log.Err(err).Str("session_id", identity.Session.ID.String()).Msg("Logout failed")
			auth.WriteError(w, err)
			return
		}
		s.gate.ForgetSession(identity.Session.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the authenticated user and session
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		auth.WriteJSON(w, http.StatusOK, MeResponse{
			User: identity.User,
			Session: sessionInfo{
				ID:          identity.Session.ID,
				SessionType: string(identity.Session.Kind),
				ExpiresAt:   identity.Session.ExpiresAt,
				CreatedAt:   identity.Session.CreatedAt,
			},
		})
	}
}

// ToolTokenRequest is the optional body of POST /api/mcp/token.
type ToolTokenRequest struct {
	ClientInfo string `json:"client_info,omitempty"`
}

// ToolTokenHandler issues a tool invocation token to a user signed in on the web
func (s *Server) ToolTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		if identity.Session.Kind != sessions.KindWeb {
			auth.WriteJSONError(w, http.StatusForbidden, auth.ErrorForbidden, "Tool tokens are issued to web sessions only")
			return
		}

		var req ToolTokenRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		tok, err := s.handshake.Issue(r.Context(), identity.User, clientInfo(req.ClientInfo, r))
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		auth.WriteJSON(w, http.StatusCreated, TokenResponse{
			AccessToken: tok.Token,
			TokenType:   tok.TokenType,
			SessionID:   tok.SessionID,
			SessionType: string(sessions.KindToolInvocation),
			ExpiresAt:   tok.ExpiresAt,
		})
	}
}
