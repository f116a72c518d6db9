package auth

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role represents operator authorization levels. System accounts are
// service identities used by upstream components that call the gateway
// programmatically.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
	RoleViewer Role = "viewer"
)

// ValidRoles contains all valid role values.
var ValidRoles = map[Role]bool{
	RoleAdmin:  true,
	RoleSystem: true,
	RoleViewer: true,
}

// User represents a gateway operator account.
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	CreatedAt           time.Time  `json:"createdAt"`
	LastLogin           time.Time  `json:"lastLogin,omitempty"`
	Disabled            bool       `json:"disabled"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// HashPassword creates a bcrypt hash of the given password.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword checks that a password meets minimum requirements.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}
