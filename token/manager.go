package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/internal/config"
	apperrors "github.com/jrsteele09/go-task-auth/internal/errors"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// ErrInvalidToken is the single validation failure. Signature, structure, and
// expiry failures are not distinguished.
var ErrInvalidToken = apperrors.ErrInvalidToken

var errWeakSecret = errors.New("signing secret shorter than minimum length")

// Manager issues and validates signed session tokens.
type Manager struct {
	signer Signer
}

// NewManager creates a manager signing with HS256 under secret.
func NewManager(secret string) (*Manager, error) {
	if len(secret) < config.MinSigningSecretLength {
		return nil, fmt.Errorf("[token.NewManager] %w (%d)", errWeakSecret, config.MinSigningSecretLength)
	}
	return &Manager{signer: NewHMACSigner(secret)}, nil
}

// Issue mints a token for a session. Expiry is the kind's default lifetime from now.
func (m *Manager) Issue(userID, sessionID uuid.UUID, kind sessions.Kind) (string, *Claims, error) {
	if !kind.Valid() {
		return "", nil, fmt.Errorf("cannot issue token for session kind %q", kind)
	}
	now := NowTimeFunc()
	claims := &Claims{
		SessionID:   sessionID.String(),
		SessionType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(kind.DefaultLifetime())),
		},
	}
	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Validate verifies signature, structure, and expiry.
func (m *Manager) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil || !parsed.Valid {
		log.Debug().Err(err).Msg("Token validation failed")
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" || !claims.SessionType.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
