package auth

import "errors"

// Failure taxonomy surfaced by the authentication core. Controllers map
// these onto HTTP status codes; none of them is retryable.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountLocked takes precedence over the password check while the
	// lockout window is open.
	ErrAccountLocked = errors.New("account locked due to too many failed login attempts")

	ErrAccountDisabled = errors.New("account deactivated")
	ErrAccountExists   = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user not found")

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrPasswordChanged rejects access tokens minted before the most recent
	// password change, even when their own expiry has not elapsed.
	ErrPasswordChanged = errors.New("password changed after token was issued")

	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
	ErrWeakPassword      = errors.New("password does not meet policy")
)
