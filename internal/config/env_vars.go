package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar       = "PORT"
	appNameEnvVar    = "APP_NAME"
	envEnvVar        = "ENV"
	baseURLEnvVar    = "BASE_URL"
	adminEmailEnvVar = "ADMIN_EMAIL"
)

type EnvVars struct {
	Port       string
	AppName    string
	Env        string
	BaseURL    string
	AdminEmail string
}

var _ EnvConfig = EnvVars{}

func loadEnvVars() EnvVars {
	return EnvVars{
		Port:       GetEnv(portEnvVar, "8080"),
		AppName:    GetEnv(appNameEnvVar, "Task Auth"),
		Env:        GetEnv(envEnvVar, "DEV"),
		BaseURL:    GetEnv(baseURLEnvVar, "http://localhost:8080"),
		AdminEmail: GetEnv(adminEmailEnvVar, ""),
	}
}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

// GetBaseURL returns the externally visible base URL (e.g. "https://tasks.example.com").
// Challenge metadata and discovery documents are derived from it.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}

// GetAdminEmail names the account seeded at startup. Empty means one is
// derived from the base URL.
func (e EnvVars) GetAdminEmail() string {
	return e.AdminEmail
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

func getBoolEnv(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
