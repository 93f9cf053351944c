package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-task-auth/vault"
	"golang.org/x/oauth2"
)

// ErrNoCredential is returned when the user has no stored third-party token.
var ErrNoCredential = errors.New("no credential configured")

// SealOAuthToken encrypts a third-party token for storage in User.EncryptedCredential.
// A nil token seals to the empty string.
func SealOAuthToken(v *vault.Vault, tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", nil
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to encode credential: %w", err)
	}
	defer clear(data)
	return v.Encrypt(string(data))
}

// OpenOAuthToken decrypts a stored third-party token. The intermediate
// plaintext buffer is zeroed before returning.
func OpenOAuthToken(v *vault.Vault, encrypted string) (*oauth2.Token, error) {
	if encrypted == "" {
		return nil, ErrNoCredential
	}
	secret, err := v.DecryptSecret(encrypted)
	if err != nil {
		return nil, err
	}
	defer secret.Close()

	var tok oauth2.Token
	if err := json.Unmarshal(secret.Bytes(), &tok); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	return &tok, nil
}

// CredentialStatus describes a stored third-party token without exposing it.
type CredentialStatus struct {
	Configured bool       `json:"configured"`
	Expired    bool       `json:"expired,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// InspectCredential decrypts the stored token only long enough to report its
// expiry. A nil vault reports presence alone.
func InspectCredential(v *vault.Vault, encrypted string, now time.Time) (CredentialStatus, error) {
	if encrypted == "" {
		return CredentialStatus{}, nil
	}
	if v == nil {
		return CredentialStatus{Configured: true}, nil
	}
	tok, err := OpenOAuthToken(v, encrypted)
	if err != nil {
		return CredentialStatus{}, err
	}
	status := CredentialStatus{Configured: true}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		status.ExpiresAt = &expiry
		status.Expired = !now.Before(expiry)
	}
	return status, nil
}
