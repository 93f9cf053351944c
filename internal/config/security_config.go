package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/rs/zerolog/log"
)

const (
	signingSecretEnvVar = "JWT_SECRET"
	encryptionKeyEnvVar = "ENCRYPTION_KEY"

	// MinSigningSecretLength is the shortest signing secret accepted from the environment.
	MinSigningSecretLength = 32
)

type SecurityConfig interface {
	GetSigningSecret() string
	GetEncryptionKey() string
}

// Security holds key material. EncryptionKey is the raw base64 text, checked
// for a 32-byte decoded length at load.
type Security struct {
	SigningSecret string
	EncryptionKey string
}

var _ SecurityConfig = Security{}

func loadSecurity() (Security, error) {
	secret, generated, err := ResolveSigningSecret(os.Getenv(signingSecretEnvVar))
	if err != nil {
		return Security{}, err
	}
	if generated {
		log.Warn().Msgf("%s missing or shorter than %d characters, generated a random secret; tokens will not survive a restart", signingSecretEnvVar, MinSigningSecretLength)
	}
	encryptionKey := os.Getenv(encryptionKeyEnvVar)
	if encryptionKey != "" {
		if err := vault.ValidateKey(encryptionKey); err != nil {
			return Security{}, fmt.Errorf("%s: %w", encryptionKeyEnvVar, err)
		}
	}
	return Security{
		SigningSecret: secret,
		EncryptionKey: encryptionKey,
	}, nil
}

func (s Security) GetSigningSecret() string {
	return s.SigningSecret
}

func (s Security) GetEncryptionKey() string {
	return s.EncryptionKey
}

// ResolveSigningSecret returns candidate unchanged when it is long enough,
// otherwise a fresh random secret. generated reports which happened.
func ResolveSigningSecret(candidate string) (secret string, generated bool, err error) {
	if len(candidate) >= MinSigningSecretLength {
		return candidate, false, nil
	}
	b := make([]byte, MinSigningSecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", false, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return hex.EncodeToString(b), true, nil
}
