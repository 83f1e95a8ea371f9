package auth

import (
	"time"

	"github.com/google/uuid"
)

// Departments an employee may belong to.
var Departments = []string{"hr", "legal", "accounts", "it"}

// Ranks recognised for employees, lowest first.
var Ranks = []string{
	"Support Staff",
	"Junior Officer",
	"Officer",
	"Senior Officer",
	"Assistant Director",
	"Director",
}

// User is an employee or an administrator (employer). Department and rank are
// only meaningful for employees.
type User struct {
	ID           uuid.UUID
	Email        string
	FirstName    string
	LastName     string
	Department   *string
	Rank         *string
	IsAdmin      bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SafeUser removes sensitive fields for response payloads.
func (u User) SafeUser() User {
	u.PasswordHash = ""
	return u
}

// TokenPair bundles access and refresh tokens.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}
