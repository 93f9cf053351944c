package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-task-auth/users"
	"github.com/rs/zerolog/log"
)

const DefaultAdminUsername = "admin"

// BootstrapAdmin ensures a whitelisted admin account exists. When email is
// empty it is derived from baseURL. The generated password is returned only
// when the account was created by this call.
func BootstrapAdmin(ctx context.Context, repo users.UserRepo, baseURL, email string) (adminEmail, generatedPassword string, err error) {
	adminEmail = email
	if adminEmail == "" {
		adminEmail = generateEmailFromBaseURL(DefaultAdminUsername, baseURL)
	}

	existing, err := repo.GetByEmail(ctx, adminEmail)
	if err == nil {
		log.Info().Str("email", existing.Email).Msg("Bootstrap: admin already exists")
		return adminEmail, "", nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return "", "", fmt.Errorf("failed to check for existing admin: %w", err)
	}

	// Generate a secure random password
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate password: %w", err)
	}
	generatedPassword = base64.URLEncoding.EncodeToString(passwordBytes)

	passwordHash, err := users.HashPassword(generatedPassword)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &users.User{
		Email:         adminEmail,
		DisplayName:   "Administrator",
		PasswordHash:  passwordHash,
		IsWhitelisted: true,
		DateJoined:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, admin); err != nil {
		return "", "", fmt.Errorf("failed to create admin: %w", err)
	}

	log.Info().Str("email", admin.Email).Str("user_id", admin.ID.String()).Msg("Bootstrap: created admin")
	return adminEmail, generatedPassword, nil
}

// generateEmailFromBaseURL creates an email address from a username and base URL
// Example: ("admin", "https://auth.example.com/path") -> "admin@auth.example.com"
func generateEmailFromBaseURL(user, baseURL string) string {
	domain := strings.ReplaceAll(strings.ReplaceAll(baseURL, "https://", ""), "http://", "")
	domain = strings.SplitN(domain, "/", 2)[0] // Remove any path
	domain = strings.SplitN(domain, ":", 2)[0] // Remove port if present
	return fmt.Sprintf("%s@%s", user, domain)
}
