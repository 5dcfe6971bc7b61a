package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"maraudersmap/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are validated and quoted to avoid SQL
//     injection via identifiers.
//   - RotateRefreshToken runs inside one transaction, serialized via
//     SELECT ... FOR UPDATE on the old ledger row.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "marauders").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "marauders",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table(name string) string {
	return `"` + s.schema + `"."` + name + `"`
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const userColumns = `id, email, password_hash, first_name, last_name, role, house, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.House, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if in.Email == "" || in.PasswordHash == "" {
		return User{}, fmt.Errorf("create user: %w", ErrInvalidInput)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	role := in.Role
	if role == "" {
		role = RoleStudent
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table("users")+` (id, email, password_hash, first_name, last_name, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING `+userColumns,
		id, in.Email, in.PasswordHash, in.FirstName, in.LastName, role, now,
	)

	u, err := scanUser(row)
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("create user: email: %w", ErrConflict)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByEmail looks up a user by normalized email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, emailNorm string) (User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.table("users")+` WHERE email = $1`,
		emailNorm,
	)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user by email: %w", ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByID looks up a user by primary id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.table("users")+` WHERE id = $1`,
		id,
	)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user by id: %w", ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdatePasswordHash replaces the stored hash for a user.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	if hash == "" {
		return fmt.Errorf("update password: %w", ErrInvalidInput)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("users")+` SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, now, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", ErrNotFound)
	}
	return nil
}

// InsertRefreshToken records a fresh issuance with revoked=false.
func (s *PostgresStore) InsertRefreshToken(ctx context.Context, row RefreshToken) error {
	if row.JTI == "" || row.UserID == "" {
		return fmt.Errorf("insert refresh token: %w", ErrInvalidInput)
	}

	created := row.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("refresh_tokens")+` (jti, user_id, is_revoked, expires_at, created_at)
		 VALUES ($1, $2, FALSE, $3, $4)`,
		row.JTI, row.UserID, row.ExpiresAt, created,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert refresh token: jti: %w", ErrConflict)
	}
	return err
}

// GetRefreshToken loads a ledger row by jti.
func (s *PostgresStore) GetRefreshToken(ctx context.Context, jti string) (RefreshToken, error) {
	var row RefreshToken
	err := s.pool.QueryRow(ctx,
		`SELECT jti, user_id, is_revoked, expires_at, created_at
		 FROM `+s.table("refresh_tokens")+` WHERE jti = $1`,
		jti,
	).Scan(&row.JTI, &row.UserID, &row.Revoked, &row.ExpiresAt, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, fmt.Errorf("refresh token: %w", ErrNotFound)
	}
	if err != nil {
		return RefreshToken{}, err
	}
	return row, nil
}

// RotateRefreshToken rotates oldJTI to next inside one transaction.
//
// The old row is locked with FOR UPDATE, so a concurrent rotation of the
// same jti blocks and then observes is_revoked=true, keeping rotations
// one-per-lineage. The replacement row is inserted before the old row is
// flagged; the reverse order would open a lockout window.
func (s *PostgresStore) RotateRefreshToken(ctx context.Context, oldJTI string, next RefreshToken) error {
	if next.JTI == "" || next.UserID == "" {
		return fmt.Errorf("rotate refresh token: %w", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var revoked bool
	err = tx.QueryRow(ctx,
		`SELECT is_revoked FROM `+s.table("refresh_tokens")+` WHERE jti = $1 FOR UPDATE`,
		oldJTI,
	).Scan(&revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("rotate refresh token: %w", ErrNotFound)
	}
	if err != nil {
		return err
	}
	if revoked {
		return fmt.Errorf("rotate refresh token: %w", ErrRevoked)
	}

	created := next.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+s.table("refresh_tokens")+` (jti, user_id, is_revoked, expires_at, created_at)
		 VALUES ($1, $2, FALSE, $3, $4)`,
		next.JTI, next.UserID, next.ExpiresAt, created,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+s.table("refresh_tokens")+` SET is_revoked = TRUE WHERE jti = $1`,
		oldJTI,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RevokeRefreshToken flags a row revoked. Zero rows affected is still
// success: revoking garbage must look like a successful logout.
func (s *PostgresStore) RevokeRefreshToken(ctx context.Context, jti string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("refresh_tokens")+` SET is_revoked = TRUE WHERE jti = $1`,
		jti,
	)
	return err
}

// RevokeAllForUser flags every unrevoked row owned by userID.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("refresh_tokens")+` SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE`,
		userID,
	)
	return err
}
