package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token related errors
	ErrTokenNotFound = errors.New("token not found")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenRevoked  = errors.New("refresh token revoked or superseded")

	// Dependency errors. Both the breaker short-circuit and a failed call
	// surface the same way to callers.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
