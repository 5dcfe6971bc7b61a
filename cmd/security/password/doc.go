// Package password provides one-way password hashing and verification for
// Marauder's Map credentials.
//
// Hashing uses bcrypt with a per-call random salt, so two hashes of the same
// plaintext are never equal. Verification is constant-time with respect to
// where a mismatch occurs. A wrong password reports false with no error; an
// error is reserved for structurally malformed stored hashes.
package password
