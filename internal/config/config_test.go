package config_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/jrsteele09/go-task-auth/internal/config"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/stretchr/testify/require"
)

func TestResolveSigningSecret(t *testing.T) {
	t.Run("long enough secret is kept", func(t *testing.T) {
		candidate := "0123456789abcdef0123456789abcdef"
		secret, generated, err := config.ResolveSigningSecret(candidate)
		require.NoError(t, err)
		require.False(t, generated)
		require.Equal(t, candidate, secret)
	})

	t.Run("short secret is regenerated", func(t *testing.T) {
		secret, generated, err := config.ResolveSigningSecret("too-short")
		require.NoError(t, err)
		require.True(t, generated)
		require.GreaterOrEqual(t, len(secret), config.MinSigningSecretLength)
	})

	t.Run("missing secret is regenerated uniquely", func(t *testing.T) {
		first, generated, err := config.ResolveSigningSecret("")
		require.NoError(t, err)
		require.True(t, generated)
		second, _, err := config.ResolveSigningSecret("")
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_URL", "https://tasks.example.com/")
	t.Setenv("MCP_SSE_REQUIRED", "true")
	t.Setenv("MCP_SSE_PORT", "9999")
	t.Setenv("MCP_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("ADMIN_EMAIL", "ops@example.com")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("SESSION_SWEEP_INTERVAL", "30s")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, "https://tasks.example.com", cfg.GetBaseURL())
	require.GreaterOrEqual(t, len(cfg.GetSigningSecret()), config.MinSigningSecretLength)
	require.True(t, cfg.GetSSERequired())
	require.Equal(t, ":9999", cfg.GetSSEAddr())
	require.Equal(t, 2*time.Second, cfg.GetShutdownTimeout())
	require.Equal(t, "ops@example.com", cfg.GetAdminEmail())
	require.Equal(t, config.StoreRedis, cfg.GetSessionStore())
	require.Equal(t, 30*time.Second, cfg.GetSessionSweepInterval())
	require.Equal(t, time.Minute, cfg.GetEphemeralSweepInterval())
}

func TestLoad_EncryptionKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	t.Run("valid key is kept", func(t *testing.T) {
		key, err := vault.GenerateKey()
		require.NoError(t, err)
		t.Setenv("ENCRYPTION_KEY", key)

		cfg, err := config.Load()
		require.NoError(t, err)
		require.Equal(t, key, cfg.GetEncryptionKey())
	})

	t.Run("wrong length is fatal", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))

		cfg, err := config.Load()
		require.ErrorIs(t, err, vault.ErrInvalidKeyLength)
		require.Nil(t, cfg)
	})

	t.Run("not base64 is fatal", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", "not base64!")

		_, err := config.Load()
		require.ErrorIs(t, err, vault.ErrInvalidKey)
	})

	t.Run("unset derives from signing secret", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", "")

		cfg, err := config.Load()
		require.NoError(t, err)
		require.Empty(t, cfg.GetEncryptionKey())
	})
}

func TestTransportDefaults(t *testing.T) {
	var tr config.Transport
	require.Equal(t, ":8765", tr.GetSSEAddr())
	require.Equal(t, config.DefaultShutdownTimeout, tr.GetShutdownTimeout())
	require.False(t, tr.GetSSERequired())
}
