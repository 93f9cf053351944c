package users

import (
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User is the slice of the account record the auth core depends on.
type User struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	Email               string     `json:"email,omitempty" db:"email"`
	DisplayName         string     `json:"display_name,omitempty" db:"display_name"`
	PasswordHash        string     `json:"-" db:"password_hash"`                                       // never serialize
	IsWhitelisted       bool       `json:"is_whitelisted" db:"is_whitelisted"`                         // gate for every authenticated request
	EncryptedCredential string     `json:"-" db:"encrypted_credential"`                                // vault ciphertext of the user's third-party token
	DateJoined          time.Time  `json:"date_joined,omitempty" db:"date_joined"`                     // Date and time when the user registered
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty" db:"last_authenticated_at"` // Last successful authentication
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HasCredential reports whether a third-party token is stored for the user.
func (u *User) HasCredential() bool {
	return u.EncryptedCredential != ""
}
