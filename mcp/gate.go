package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/rs/zerolog/log"
)

var errNotToolSession = errors.New("session is not a tool invocation session")

// Gate authorizes the tool transport. A credential is accepted from the
// ephemeral table first, then from the signed-token path.
type Gate struct {
	ephemeral *EphemeralTokens
	primary   *auth.Gate
	repos     auth.Repos
	baseURL   string
	rich      bool
}

// GateOption defines a function type to modify the Gate instance.
type GateOption func(*Gate)

// WithRichChallenge makes rejections advertise the authorization endpoints
// and metadata path under baseURL.
func WithRichChallenge(baseURL string) GateOption {
	return func(g *Gate) {
		g.baseURL = baseURL
		g.rich = true
	}
}

func NewGate(ephemeral *EphemeralTokens, primary *auth.Gate, repos auth.Repos, opts ...GateOption) *Gate {
	g := &Gate{
		ephemeral: ephemeral,
		primary:   primary,
		repos:     repos,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate resolves a raw tool credential to an identity. It returns
// auth.ErrInternal for store failures and auth.ErrUnauthorized otherwise.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*auth.Identity, error) {
	if raw == "" {
		return nil, auth.ErrUnauthorized
	}

	identity, err := g.fromEphemeral(ctx, raw)
	if err == nil {
		return identity, nil
	}
	if errors.Is(err, auth.ErrInternal) {
		return nil, err
	}
	log.Debug().Err(err).Msg("Ephemeral tool token not accepted, trying signed token")

	identity, err = g.fromSignedToken(ctx, raw)
	if err != nil {
		if errors.Is(err, auth.ErrInternal) {
			return nil, err
		}
		return nil, auth.ErrUnauthorized
	}
	return identity, nil
}

func (g *Gate) fromEphemeral(ctx context.Context, raw string) (*auth.Identity, error) {
	entry, ok := g.ephemeral.Lookup(raw)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	user, err := g.primary.ResolveUser(ctx, entry.UserID)
	if err != nil {
		return nil, err
	}

	session, err := g.repos.Sessions.GetValidByTokenHash(ctx, sessions.HashToken(raw))
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, auth.ErrUnauthorized
	}
	if err != nil {
		log.Err(err).Msg("Tool session lookup failed")
		return nil, fmt.Errorf("%w: session lookup: %v", auth.ErrInternal, err)
	}
	if session.Kind != sessions.KindToolInvocation || session.UserID != user.ID {
		return nil, errNotToolSession
	}
	return &auth.Identity{User: user, Session: session}, nil
}

func (g *Gate) fromSignedToken(ctx context.Context, raw string) (*auth.Identity, error) {
	identity, err := g.primary.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if identity.Session.Kind != sessions.KindToolInvocation {
		log.Warn().Str("session_id", identity.Session.ID.String()).Str("session_type", string(identity.Session.Kind)).Msg("Rejected non-tool session on tool transport")
		return nil, errNotToolSession
	}
	return identity, nil
}

// Reject writes the failure response for err: 500 for store failures,
// otherwise the configured challenge.
func (g *Gate) Reject(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrInternal) {
		auth.WriteError(w, err)
		return
	}
	if g.rich {
		WriteRichChallenge(w, g.baseURL, "A valid tool token is required")
		return
	}
	WriteChallenge(w, "A valid tool token is required")
}

// RequireToolAuth rejects requests that do not carry an accepted tool credential.
func (g *Gate) RequireToolAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := auth.BearerToken(r)
		identity, err := g.Authenticate(r.Context(), raw)
		if err != nil {
			g.Reject(w, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	}
}
