package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-task-auth/internal/errors"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/token"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/rs/zerolog/log"
)

// ExtensionFailureThreshold is the number of consecutive failed expiry
// extensions for one session after which the failure is logged at error level.
const ExtensionFailureThreshold = 3

// Repos holds the repository dependencies for the gate and the service.
type Repos struct {
	Users    users.UserRepo
	Sessions sessions.Repo
}

// Gate authenticates requests bearing a signed session token.
type Gate struct {
	tokens  *token.Manager
	repos   Repos
	nowTime func() time.Time

	failureLock       sync.Mutex
	extensionFailures map[uuid.UUID]extensionFailure
}

type extensionFailure struct {
	count     int
	expiresAt time.Time
}

// GateOption defines a function type to modify the Gate instance.
type GateOption func(*Gate)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) GateOption {
	return func(g *Gate) {
		g.nowTime = nowFunc
	}
}

func NewGate(tokens *token.Manager, repos Repos, opts ...GateOption) *Gate {
	g := &Gate{
		tokens:            tokens,
		repos:             repos,
		nowTime:           time.Now,
		extensionFailures: make(map[uuid.UUID]extensionFailure),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthenticateRequest runs the full procedure against the request's Authorization header.
func (g *Gate) AuthenticateRequest(r *http.Request) (*Identity, error) {
	raw, ok := BearerToken(r)
	if !ok {
		return nil, ErrUnauthorized
	}
	return g.Authenticate(r.Context(), raw)
}

// Authenticate verifies a raw bearer credential and, on success, records the
// activity: last-authenticated timestamp and session renewal. Those writes are
// best-effort and never fail the call.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	identity, err := g.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	g.Touch(ctx, identity)
	return identity, nil
}

// Verify validates the signed token, finds the live session by the
// credential's digest, cross-checks it against the claims, and loads the user.
// It has no side effects.
func (g *Gate) Verify(ctx context.Context, raw string) (*Identity, error) {
	session, claims, err := g.resolveSession(ctx, raw)
	if err != nil {
		return nil, err
	}
	user, err := g.ResolveUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("user_id", user.ID.String()).Str("session_id", session.ID.String()).Str("session_type", string(claims.SessionType)).Msg("Authenticated")
	return &Identity{User: user, Session: session}, nil
}

func (g *Gate) resolveSession(ctx context.Context, raw string) (*sessions.Session, *token.Claims, error) {
	claims, err := g.tokens.Validate(raw)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	sessionID, err := claims.SessionUUID()
	if err != nil {
		return nil, nil, ErrUnauthorized
	}

	session, err := g.repos.Sessions.GetValidByTokenHash(ctx, sessions.HashToken(raw))
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, nil, ErrUnauthorized
	}
	if err != nil {
		log.Err(err).Msg("Session lookup failed")
		return nil, nil, fmt.Errorf("%w: session lookup: %v", ErrInternal, err)
	}

	if session.UserID != userID || session.ID != sessionID {
		log.Warn().
			Str("claims_user_id", userID.String()).
			Str("claims_session_id", sessionID.String()).
			Str("session_id", session.ID.String()).
			Msg("Token claims do not match stored session, possible replay against a rotated session")
		return nil, nil, ErrUnauthorized
	}
	return session, claims, nil
}

// ResolveUser loads a user and enforces the whitelist.
func (g *Gate) ResolveUser(ctx context.Context, userID uuid.UUID) (*users.User, error) {
	user, err := g.repos.Users.GetByID(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		log.Err(err).Str("user_id", userID.String()).Msg("User lookup failed")
		return nil, fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}
	if !user.IsWhitelisted {
		log.Info().Str("user_id", userID.String()).Msg("Rejected authenticated request from non-whitelisted user")
		return nil, apperrors.Wrapf(ErrNotWhitelisted, "user %s", userID)
	}
	return user, nil
}

// Touch updates the user's last-authenticated time and renews the session by
// its kind's default lifetime. Failures are logged only.
func (g *Gate) Touch(ctx context.Context, identity *Identity) {
	now := g.nowTime().UTC()
	if err := g.repos.Users.UpdateLastAuthenticated(ctx, identity.User.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", identity.User.ID.String()).Msg("Failed to update last authenticated time")
	} else {
		identity.User.LastAuthenticatedAt = &now
	}

	expiresAt := now.Add(identity.Session.Kind.DefaultLifetime())
	if err := g.repos.Sessions.ExtendExpiry(ctx, identity.Session.ID, expiresAt); err != nil {
		g.recordExtensionFailure(identity.Session, err)
		return
	}
	g.ForgetSession(identity.Session.ID)
	identity.Session.ExpiresAt = expiresAt
}

// recordExtensionFailure also drops counters for sessions that have since
// expired, so the map only holds sessions that can still authenticate.
func (g *Gate) recordExtensionFailure(session *sessions.Session, err error) {
	now := g.nowTime()
	g.failureLock.Lock()
	for id, failure := range g.extensionFailures {
		if !now.Before(failure.expiresAt) {
			delete(g.extensionFailures, id)
		}
	}
	failure := g.extensionFailures[session.ID]
	failure.count++
	failure.expiresAt = session.ExpiresAt
	g.extensionFailures[session.ID] = failure
	count := failure.count
	g.failureLock.Unlock()

	event := log.Warn()
	if count >= ExtensionFailureThreshold {
		event = log.Error()
	}
	event.Err(err).Str("session_id", session.ID.String()).Int("consecutive_failures", count).Msg("Failed to extend session expiry")
}

// ForgetSession drops any state the gate holds for a session. Call it when
// the session ends.
func (g *Gate) ForgetSession(sessionID uuid.UUID) {
	g.failureLock.Lock()
	delete(g.extensionFailures, sessionID)
	g.failureLock.Unlock()
}

// ExtensionFailures reports consecutive extension failures recorded for a session.
func (g *Gate) ExtensionFailures(sessionID uuid.UUID) int {
	g.failureLock.Lock()
	defer g.failureLock.Unlock()
	return g.extensionFailures[sessionID].count
}

// RequireAuth rejects the request unless it authenticates, attaching the identity on success.
func (g *Gate) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.AuthenticateRequest(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

// OptionalAuth attaches the identity when the request authenticates and
// otherwise lets it through unauthenticated.
func (g *Gate) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.AuthenticateRequest(r)
		if err != nil {
			next(w, r)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}
