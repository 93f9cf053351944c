package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the gates, the issuer, and the stores.
var (
	// Credential errors: surfaced as 401 without detail.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")

	// Authorization errors: valid identity, insufficient standing. Surfaced as 403.
	ErrForbidden      = errors.New("forbidden")
	ErrNotWhitelisted = Wrapf(ErrForbidden, "user is not whitelisted")

	// Lookup errors
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")

	// Infrastructure errors: surfaced as 500.
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
