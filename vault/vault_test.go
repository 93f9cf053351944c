package vault_test

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/jrsteele09/go-task-auth/internal/config"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	v, err := vault.New(config.Security{EncryptionKey: key})
	require.NoError(t, err)
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	for _, plaintext := range []string{
		"a",
		"ya29.a0AfH6SMBx-access-token",
		"ünïcødé ✓ 日本語",
		string(bytes.Repeat([]byte("x"), 4096)),
	} {
		encrypted, err := v.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, encrypted)

		decrypted, err := v.Decrypt(encrypted)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestVault_EmptyIsNoOp(t *testing.T) {
	v := newTestVault(t)

	encrypted, err := v.Encrypt("")
	require.NoError(t, err)
	require.Equal(t, "", encrypted)

	decrypted, err := v.Decrypt("")
	require.NoError(t, err)
	require.Equal(t, "", decrypted)
}

func TestVault_NonceUniqueness(t *testing.T) {
	v := newTestVault(t)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		encrypted, err := v.Encrypt("same plaintext")
		require.NoError(t, err)
		_, dup := seen[encrypted]
		require.False(t, dup, "ciphertext repeated")
		seen[encrypted] = struct{}{}
	}
}

func TestVault_DecryptFailures(t *testing.T) {
	v := newTestVault(t)
	encrypted, err := v.Encrypt("refresh-token-value")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)

	t.Run("malformed base64", func(t *testing.T) {
		_, err := v.Decrypt("not base64 !!!")
		require.ErrorIs(t, err, vault.ErrMalformedInput)
	})

	t.Run("shorter than nonce", func(t *testing.T) {
		_, err := v.Decrypt(base64.StdEncoding.EncodeToString(raw[:5]))
		require.ErrorIs(t, err, vault.ErrCiphertextTooShort)
	})

	t.Run("tampered ciphertext byte", func(t *testing.T) {
		for i := 12; i < len(raw); i++ {
			tampered := bytes.Clone(raw)
			tampered[i] ^= 0x01
			plaintext, err := v.Decrypt(base64.StdEncoding.EncodeToString(tampered))
			require.ErrorIs(t, err, vault.ErrAuthentication)
			require.Empty(t, plaintext)
		}
	})

	t.Run("tampered nonce", func(t *testing.T) {
		tampered := bytes.Clone(raw)
		tampered[0] ^= 0xff
		_, err := v.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		require.ErrorIs(t, err, vault.ErrAuthentication)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := newTestVault(t)
		_, err := other.Decrypt(encrypted)
		require.ErrorIs(t, err, vault.ErrAuthentication)
	})
}

func TestVault_RejectsNonUTF8Plaintext(t *testing.T) {
	v := newTestVault(t)
	encrypted, err := v.Encrypt(string([]byte{0xff, 0xfe, 0xfd}))
	require.NoError(t, err)

	_, err = v.Decrypt(encrypted)
	require.ErrorIs(t, err, vault.ErrInvalidUTF8)
}

func TestVault_KeyResolution(t *testing.T) {
	t.Run("dedicated key wrong length is fatal", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString(make([]byte, 16))
		_, err := vault.New(config.Security{EncryptionKey: short, SigningSecret: "0123456789abcdef0123456789abcdef"})
		require.ErrorIs(t, err, vault.ErrInvalidKeyLength)
	})

	t.Run("dedicated key not base64 is fatal", func(t *testing.T) {
		_, err := vault.New(config.Security{EncryptionKey: "%%%"})
		require.ErrorIs(t, err, vault.ErrInvalidKey)
	})

	t.Run("derived from signing secret", func(t *testing.T) {
		secret := "0123456789abcdef0123456789abcdef"
		first, err := vault.New(config.Security{SigningSecret: secret})
		require.NoError(t, err)
		second, err := vault.New(config.Security{SigningSecret: secret})
		require.NoError(t, err)

		encrypted, err := first.Encrypt("portable")
		require.NoError(t, err)
		decrypted, err := second.Decrypt(encrypted)
		require.NoError(t, err)
		require.Equal(t, "portable", decrypted)
	})

	t.Run("derived key differs from dedicated", func(t *testing.T) {
		secret := "0123456789abcdef0123456789abcdef"
		derived, err := vault.DeriveKey(secret)
		require.NoError(t, err)
		require.Len(t, derived, vault.KeySize)
		require.NotEqual(t, []byte(secret), derived)
	})

	t.Run("no key material", func(t *testing.T) {
		_, err := vault.New(config.Security{})
		require.ErrorIs(t, err, vault.ErrNoKeyMaterial)
	})

	t.Run("raw key length enforced", func(t *testing.T) {
		_, err := vault.NewWithKey(make([]byte, 31))
		require.ErrorIs(t, err, vault.ErrInvalidKeyLength)
	})
}

func TestGenerateAndValidateKey(t *testing.T) {
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, vault.ValidateKey(key))

	other, err := vault.GenerateKey()
	require.NoError(t, err)
	require.NotEqual(t, key, other)

	require.ErrorIs(t, vault.ValidateKey(base64.StdEncoding.EncodeToString(make([]byte, 33))), vault.ErrInvalidKeyLength)
	require.ErrorIs(t, vault.ValidateKey("***"), vault.ErrInvalidKey)
}

func TestSecret_ZeroedOnClose(t *testing.T) {
	v := newTestVault(t)
	encrypted, err := v.Encrypt("live-credential")
	require.NoError(t, err)

	secret, err := v.DecryptSecret(encrypted)
	require.NoError(t, err)
	backing := secret.Bytes()
	require.Equal(t, "live-credential", string(backing))

	secret.Close()
	require.Equal(t, make([]byte, len(backing)), backing)
	require.True(t, secret.IsEmpty())
	require.Nil(t, secret.Bytes())
	secret.Close()
}
