package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for both "no such user" and "wrong
	// password". One sentinel, one message: login failures must not leak
	// which half failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an already-registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrTokenNotFound is returned when a refresh token's jti has no ledger row.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked is returned when the ledger row is flagged revoked.
	ErrTokenRevoked = errors.New("refresh token revoked")

	// ErrWrongTokenType is returned when a token verifies but carries the
	// wrong type claim for the operation (e.g. an access token presented
	// for refresh).
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrIncorrectPassword is returned by ChangePassword when the old
	// password fails verification.
	ErrIncorrectPassword = errors.New("incorrect password")

	// ErrWeakPassword is returned when a new password is below the minimum length.
	ErrWeakPassword = errors.New("password below minimum length")

	// ErrSamePassword is returned when the new password equals the old one.
	ErrSamePassword = errors.New("new password must differ from old password")
)

// ValidationError reports a malformed input field with a precise reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
