package users

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user's role within the portal
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Can manage services, users, and settings
	RoleUser  RoleType = "user"  // Regular portal user
)

// User is the identity record published to the rest of the application.
// The API serialises it with snake_case keys (Django-style backend).
type User struct {
	ID       string   `json:"id,omitempty"`       // Opaque unique identifier
	Username string   `json:"username,omitempty"` // Display name
	Email    string   `json:"email,omitempty"`    // User's email address
	Role     RoleType `json:"role,omitempty"`     // Portal role (admin/user)

	Verified bool `json:"is_verified"` // Has the user verified who they are
	Admin    bool `json:"is_admin"`    // Shortcut flag mirroring Role == RoleAdmin
	Active   bool `json:"is_active"`   // Blocked accounts have Active == false
}

// IsAdmin reports whether the user holds the admin role.
// Both the flag and the role are honoured since the backend sets both.
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	return u.Admin || u.Role == RoleAdmin
}

// ValidateCredentials checks login fields before any network call is made.
// Field-level failures never reach the session layer.
func ValidateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("invalid email format")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
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

// HashPassword creates a bcrypt hash of a plaintext password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password with a bcrypt hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
