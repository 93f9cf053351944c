package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// PutCredentialHandler encrypts and stores the caller's third-party OAuth token.
// The body uses the oauth2.Token JSON shape.
func (s *Server) PutCredentialHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())

		var tok oauth2.Token
		if !decodeJSON(w, r, &tok) {
			return
		}
		if tok.AccessToken == "" {
			auth.WriteJSONError(w, http.StatusBadRequest, auth.ErrorInvalidRequest, "access_token is required")
			return
		}

		sealed, err := users.SealOAuthToken(s.vault, &tok)
		if err != nil {
			log.Err(err).Str("user_id", identity.User.ID.String()).Msg("Failed to encrypt credential")
			auth.WriteJSONError(w, http.StatusInternalServerError, auth.ErrorServer, "Internal error")
			return
		}
		if err := s.repos.Users.SetEncryptedCredential(r.Context(), identity.User.ID, sealed); err != nil {
			log.Err(err).Str("user_id", identity.User.ID.String()).Msg("Failed to store credential")
			auth.WriteJSONError(w, http.StatusInternalServerError, auth.ErrorServer, "Internal error")
			return
		}
		log.Info().Str("user_id", identity.User.ID.String()).Msg("Credential stored")
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteCredentialHandler removes the caller's stored third-party token.
func (s *Server) DeleteCredentialHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		if err := s.repos.Users.SetEncryptedCredential(r.Context(), identity.User.ID, ""); err != nil {
			log.Err(err).Str("user_id", identity.User.ID.String()).Msg("Failed to clear credential")
			auth.WriteJSONError(w, http.StatusInternalServerError, auth.ErrorServer, "Internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CredentialStatusHandler reports whether a credential is stored and when it expires.
func (s *Server) CredentialStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		status, err := users.InspectCredential(s.vault, identity.User.EncryptedCredential, time.Now())
		if err != nil {
			log.Err(err).Str("user_id", identity.User.ID.String()).Msg("Stored credential could not be decrypted")
			auth.WriteJSONError(w, http.StatusInternalServerError, auth.ErrorCredentialUnreadable, "Stored credential could not be decrypted")
			return
		}
		auth.WriteJSON(w, http.StatusOK, status)
	}
}
