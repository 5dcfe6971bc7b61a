// Package token issues and verifies the signed JWTs that carry Marauder's
// Map authentication state.
//
// Access tokens are short-lived and stateless: verification is a pure
// function of the token and the signing secret, with no storage round-trip.
// Refresh tokens are longer-lived and carry a unique jti, which is the key
// of the server-side revocation ledger kept by the identity store.
//
// Verification failures are reported as a closed set of error kinds
// (ErrExpired, ErrInvalidSignature, ErrMalformed) so callers switch on
// errors.Is, never on message text.
package token
