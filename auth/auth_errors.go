package auth

import (
	"net/http"

	apperrors "github.com/jrsteele09/go-task-auth/internal/errors"
)

var (
	// ErrUnauthorized covers every credential failure. Callers never learn which check failed.
	ErrUnauthorized = apperrors.ErrUnauthorized

	// ErrForbidden means the credential is valid but the account is not whitelisted.
	ErrForbidden = apperrors.ErrForbidden

	// ErrNotWhitelisted wraps ErrForbidden.
	ErrNotWhitelisted = apperrors.ErrNotWhitelisted

	// ErrInternal wraps store failures during authentication.
	ErrInternal = apperrors.ErrInternal
)

// StatusCode maps an authentication error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case apperrors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case apperrors.Is(err, ErrInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// WriteError writes the JSON error body for an authentication failure.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	switch status {
	case http.StatusForbidden:
		WriteJSONError(w, status, ErrorForbidden, "Account is not permitted to use this service")
	case http.StatusInternalServerError:
		WriteJSONError(w, status, ErrorServer, "Internal error")
	default:
		WriteJSONError(w, status, ErrorUnauthorized, "Unauthorized")
	}
}
