package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ErrorCode is the machine-readable "error" member of a JSON error body.
// Values follow the OAuth 2.0 error vocabulary where one exists.
type ErrorCode string

const (
	ErrorInvalidRequest    ErrorCode = "invalid_request"
	ErrorInvalidGrant      ErrorCode = "invalid_grant"
	ErrorInvalidToken      ErrorCode = "invalid_token"
	ErrorInsufficientScope ErrorCode = "insufficient_scope"
	ErrorUnauthorized      ErrorCode = "unauthorized"
	ErrorForbidden         ErrorCode = "forbidden"
	ErrorNotFound          ErrorCode = "not_found"
	ErrorServer            ErrorCode = "server_error"

	// ErrorCredentialUnreadable means a stored credential no longer decrypts
	// under the current key.
	ErrorCredentialUnreadable ErrorCode = "credential_unreadable"
)

// BearerToken extracts the credential from "Authorization: Bearer <token>".
// The scheme match is exact and case-sensitive; anything else is treated as no credential.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := header[len(bearerPrefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

type errorBody struct {
	Error            ErrorCode `json:"error"`
	ErrorDescription string    `json:"error_description,omitempty"`
}

// WriteJSONError writes {"error":..., "error_description":...} with status.
func WriteJSONError(w http.ResponseWriter, status int, code ErrorCode, description string) {
	WriteJSON(w, status, errorBody{Error: code, ErrorDescription: description})
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
