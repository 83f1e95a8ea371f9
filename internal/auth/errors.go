package auth

import "errors"

var (
	// ErrEmailAlreadyExists indicates the email is already registered.
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrInvalidCredentials is returned when authentication fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidProfile rejects registrations with a missing name or an unknown department or rank.
	ErrInvalidProfile = errors.New("invalid employee profile")
	// ErrUserNotFound signals that the user could not be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRefreshToken covers unknown, expired and already used refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUnauthorized represents missing or invalid authentication tokens.
	ErrUnauthorized = errors.New("unauthorized")
)
