package auth

import (
	"context"

	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the authenticated *Identity
const ContextKeyIdentity ContextKey = "identity"

// Identity is the resolved (User, Session) pair attached to an authenticated request.
type Identity struct {
	User    *users.User
	Session *sessions.Session
}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, identity)
}

// IdentityFromContext returns the identity attached by a gate, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(ContextKeyIdentity).(*Identity)
	return identity, ok && identity != nil
}
