package password

import "errors"

var (
	// ErrInvalidHash is returned when a stored hash is structurally malformed
	// (wrong prefix, truncated, unknown cost). It is never returned for a
	// legitimate mismatch.
	ErrInvalidHash = errors.New("invalid password hash format")

	// ErrPasswordTooShort is returned when a plaintext is below the policy minimum.
	ErrPasswordTooShort = errors.New("password too short")

	// ErrPasswordTooLong is returned when a plaintext exceeds bcrypt's input limit.
	ErrPasswordTooLong = errors.New("password too long")
)
