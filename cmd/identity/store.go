package identity

import (
	"context"
	"time"
)

// Role is the user's authorization tier.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RolePrefect Role = "PREFECT"
	RoleAuror   Role = "AUROR"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RolePrefect, RoleAuror:
		return true
	}
	return false
}

// User is the canonical credential record.
type User struct {
	ID           string
	Email        string // normalized
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	House        *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sanitized returns a copy with the password hash cleared. This is the only
// shape of User that may cross the store boundary toward API responses.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// RefreshToken is one row of the refresh-token ledger, keyed by jti.
// Rows are flagged, never deleted: the ledger doubles as an audit trail.
type RefreshToken struct {
	JTI       string
	UserID    string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateUserInput describes a registration request. Email must already be
// normalized and the password already hashed by the caller.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Now          time.Time
}

// UserStore is the credential-record persistence boundary.
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrConflict when the
	// normalized email is already registered.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserByEmail looks up by normalized email. Returns ErrNotFound.
	GetUserByEmail(ctx context.Context, emailNorm string) (User, error)

	// GetUserByID looks up by primary id. Returns ErrNotFound.
	GetUserByID(ctx context.Context, id string) (User, error)

	// UpdatePasswordHash replaces the stored hash for a user.
	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error
}

// RefreshTokenStore is the refresh-token ledger boundary.
type RefreshTokenStore interface {
	// InsertRefreshToken records a fresh issuance with revoked=false.
	InsertRefreshToken(ctx context.Context, row RefreshToken) error

	// GetRefreshToken loads a ledger row by jti. Returns ErrNotFound.
	GetRefreshToken(ctx context.Context, jti string) (RefreshToken, error)

	// RotateRefreshToken atomically replaces oldJTI with next: it verifies
	// the old row exists and is unrevoked, inserts the replacement, then
	// flags the old row revoked. At most one rotation of a given jti can
	// succeed; a concurrent second attempt observes ErrRevoked.
	//
	// Returns ErrNotFound when oldJTI is absent, ErrRevoked when it has
	// already been rotated or revoked.
	RotateRefreshToken(ctx context.Context, oldJTI string, next RefreshToken) error

	// RevokeRefreshToken flags a row revoked. Unknown or already-revoked
	// jti values are a no-op success: logout must always appear to succeed.
	RevokeRefreshToken(ctx context.Context, jti string) error

	// RevokeAllForUser flags every unrevoked row owned by userID.
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Store combines the two persistence boundaries the session layer consumes.
type Store interface {
	UserStore
	RefreshTokenStore
}
