package token

import "errors"

var (
	// ErrNoSecret is returned at construction when the signing secret is
	// absent. This is fatal at startup, never a per-request condition.
	ErrNoSecret = errors.New("signing secret not configured")

	// ErrExpired is returned when a token's signature is valid but its
	// expiry has passed.
	ErrExpired = errors.New("token expired")

	// ErrInvalidSignature is returned when the signature does not match the
	// configured secret (tampering or a foreign signer).
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrMalformed is returned when the token is not a well-formed JWT or
	// its claims have the wrong shape.
	ErrMalformed = errors.New("malformed token")

	// ErrConfig is returned for invalid TTL configuration.
	ErrConfig = errors.New("invalid token config")
)
