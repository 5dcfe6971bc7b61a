// Package session orchestrates the authentication token lifecycle:
// registration, credential login, access verification, refresh rotation,
// revocation, and password changes.
//
// The state machine per refresh-token lineage is
//
//	ISSUED -> (used for refresh) -> ROTATED (prior token revoked) -> ... -> REVOKED
//
// with the revoked flag monotonic. Rotation is atomic at the store layer:
// the replacement ledger row is durable before the old row is flagged, and
// at most one rotation of a given jti can succeed.
package session
