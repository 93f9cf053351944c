// Package vault encrypts third-party credentials before they reach storage.
//
// Ciphertext format: base64(std) of nonce(12) || AES-256-GCM ciphertext || tag(16).
// The empty string encrypts and decrypts to the empty string so that "no
// credential configured" needs no special casing by callers.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// derivationSalt is fixed so the derived key is stable across restarts for a given secret.
var derivationSalt = []byte("go-task-auth/vault/v1")

var (
	ErrNoKeyMaterial      = errors.New("vault: no encryption key or signing secret configured")
	ErrInvalidKey         = errors.New("vault: encryption key is not valid base64")
	ErrInvalidKeyLength   = errors.New("vault: encryption key must decode to exactly 32 bytes")
	ErrMalformedInput     = errors.New("vault: ciphertext is not valid base64")
	ErrCiphertextTooShort = errors.New("vault: ciphertext shorter than nonce")
	ErrAuthentication     = errors.New("vault: authentication failed")
	ErrInvalidUTF8        = errors.New("vault: plaintext is not valid UTF-8")
)

// KeySource supplies key material. config.Config satisfies it.
type KeySource interface {
	GetEncryptionKey() string
	GetSigningSecret() string
}

// Vault is safe for concurrent use; it holds no state beyond the cipher.
type Vault struct {
	aead cipher.AEAD
}

// New resolves the key from src: a dedicated base64 key when present, else a
// key derived from the signing secret. It never returns a keyless vault.
func New(src KeySource) (*Vault, error) {
	if encoded := src.GetEncryptionKey(); encoded != "" {
		key, err := decodeKey(encoded)
		if err != nil {
			return nil, err
		}
		return NewWithKey(key)
	}

	secret := src.GetSigningSecret()
	if secret == "" {
		return nil, ErrNoKeyMaterial
	}
	log.Warn().Msg("No dedicated encryption key configured, deriving the credential key from the signing secret; set ENCRYPTION_KEY for stronger isolation")
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return NewWithKey(key)
}

// NewWithKey builds a vault from raw key bytes.
func NewWithKey(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// DeriveKey derives a 256-bit key from the signing secret with HKDF-SHA256 and a fixed salt.
func DeriveKey(signingSecret string) ([]byte, error) {
	if signingSecret == "" {
		return nil, ErrNoKeyMaterial
	}
	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, []byte(signingSecret), derivationSalt, []byte("credential-encryption"))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("vault: key derivation failed: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonceSize := v.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+v.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return "", fmt.Errorf("vault: failed to generate nonce: %w", err)
	}
	out = v.aead.Seal(out, out[:nonceSize], []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. Prefer DecryptSecret when the
// plaintext should not outlive the caller's scope.
func (v *Vault) Decrypt(encoded string) (string, error) {
	secret, err := v.DecryptSecret(encoded)
	if err != nil {
		return "", err
	}
	defer secret.Close()
	return secret.String(), nil
}

// DecryptSecret opens a value produced by Encrypt into a Secret the caller must Close.
func (v *Vault) DecryptSecret(encoded string) (*Secret, error) {
	if encoded == "" {
		return newSecret(nil), nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformedInput
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	if !utf8.Valid(plaintext) {
		clear(plaintext)
		return nil, ErrInvalidUTF8
	}
	return newSecret(plaintext), nil
}

// GenerateKey returns a fresh random key, base64 encoded, suitable for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("vault: failed to generate key: %w", err)
	}
	defer clear(key)
	return base64.StdEncoding.EncodeToString(key), nil
}

// ValidateKey checks a base64 key candidate without building a vault.
func ValidateKey(encoded string) error {
	key, err := decodeKey(encoded)
	if err != nil {
		return err
	}
	clear(key)
	return nil
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidKey
	}
	if len(key) != KeySize {
		clear(key)
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}
