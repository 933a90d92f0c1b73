package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Credential errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrUserExists         = errors.New("user already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email address")

	// Federated login errors
	ErrUnknownProvider = errors.New("unknown identity provider")
	ErrInvalidState    = errors.New("invalid auth flow state")
	ErrInvalidNonce    = errors.New("invalid nonce")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrStoreClosed     = errors.New("session store closed")

	// General errors
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternal            = errors.New("internal error")
	ErrUnsupported         = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Message returns a short, user presentable message for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case Is(err, ErrEmailNotConfirmed):
		return "Please confirm your email address before signing in"
	case Is(err, ErrUserExists):
		return "An account with this email already exists"
	case Is(err, ErrWeakPassword), Is(err, ErrInvalidEmail), Is(err, ErrInvalidRequest):
		return err.Error()
	case Is(err, ErrUnknownProvider):
		return "Sign-in provider is not available"
	case Is(err, ErrProviderUnavailable):
		return "The sign-in service is unavailable, please try again"
	case Is(err, ErrUnsupported):
		return "This action is not supported"
	}
	return "Something went wrong, please try again"
}
