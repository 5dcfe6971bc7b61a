// Package identity is the persistence boundary for Marauder's Map security
// principals: user credential records and the refresh-token ledger.
//
// Invariants owned here:
//   - emails are case-insensitive-unique (stored normalized);
//   - password hashes never leave this boundary except to the session layer
//     through sanitized copies;
//   - refresh-token rows are never deleted, only flagged revoked, and the
//     revoked flag is monotonic (false to true, never back).
//
// Two implementations are provided: PostgresStore (pgx) for production and
// MemoryStore for dev mode and tests.
package identity
