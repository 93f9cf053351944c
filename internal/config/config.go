package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration. It is resolved once by Load and
// passed by reference to every component that needs it.
type Config interface {
	EnvConfig
	SecurityConfig
	TransportConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetAdminEmail() string
}

type mainConfig struct {
	EnvVars
	Security
	Transport
	Store
}

// Load reads a .env file if one is present, then resolves every setting from
// the environment. The signing secret is regenerated when missing or too short.
func Load() (Config, error) {
	_ = godotenv.Load()

	security, err := loadSecurity()
	if err != nil {
		return nil, fmt.Errorf("[config.Load] security: %w", err)
	}

	return &mainConfig{
		EnvVars:   loadEnvVars(),
		Security:  security,
		Transport: loadTransport(),
		Store:     loadStore(),
	}, nil
}

// New builds a configuration from explicit values. Intended for tests and
// embedders that do not read the environment.
func New(env EnvVars, security Security, transport Transport, store Store) Config {
	return &mainConfig{
		EnvVars:   env,
		Security:  security,
		Transport: transport,
		Store:     store,
	}
}
