package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"maraudersmap/cmd/identity/ids"
)

// MemoryStore is the in-memory Store used when no database is configured
// (dev mode) and by unit tests. All maps are guarded by one mutex; the
// ledger keeps revoked rows forever, mirroring the audit-trail semantics of
// the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]*User         // id -> user
	byEmail map[string]string        // normalized email -> id
	tokens  map[string]*RefreshToken // jti -> row
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]*RefreshToken),
	}
}

// CreateUser inserts a new user, enforcing email uniqueness.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[in.Email]; exists {
		return User{}, fmt.Errorf("create user: email: %w", ErrConflict)
	}

	u := &User{
		ID:           id,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[id] = u
	s.byEmail[in.Email] = id

	return *u, nil
}

// GetUserByEmail looks up a user by normalized email.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, emailNorm string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailNorm]
	if !ok {
		return User{}, fmt.Errorf("user by email: %w", ErrNotFound)
	}
	return *s.users[id], nil
}

// GetUserByID looks up a user by primary id.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user by id: %w", ErrNotFound)
	}
	return *u, nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" {
		return fmt.Errorf("update password: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("update password: %w", ErrNotFound)
	}
	u.PasswordHash = hash
	u.UpdatedAt = now
	return nil
}

// InsertRefreshToken records a fresh issuance.
func (s *MemoryStore) InsertRefreshToken(ctx context.Context, row RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if row.JTI == "" || row.UserID == "" {
		return fmt.Errorf("insert refresh token: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[row.JTI]; exists {
		return fmt.Errorf("insert refresh token: jti: %w", ErrConflict)
	}
	cp := row
	s.tokens[row.JTI] = &cp
	return nil
}

// GetRefreshToken loads a ledger row by jti.
func (s *MemoryStore) GetRefreshToken(ctx context.Context, jti string) (RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tokens[jti]
	if !ok {
		return RefreshToken{}, fmt.Errorf("refresh token: %w", ErrNotFound)
	}
	return *row, nil
}

// RotateRefreshToken performs the check-insert-revoke sequence under one
// lock, so two concurrent rotations of the same jti cannot both succeed.
// The replacement row is durable before the old row is flagged.
func (s *MemoryStore) RotateRefreshToken(ctx context.Context, oldJTI string, next RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if next.JTI == "" || next.UserID == "" {
		return fmt.Errorf("rotate refresh token: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tokens[oldJTI]
	if !ok {
		return fmt.Errorf("rotate refresh token: %w", ErrNotFound)
	}
	if old.Revoked {
		return fmt.Errorf("rotate refresh token: %w", ErrRevoked)
	}

	cp := next
	s.tokens[next.JTI] = &cp
	old.Revoked = true
	return nil
}

// RevokeRefreshToken flags a row revoked; unknown jti is a no-op success.
func (s *MemoryStore) RevokeRefreshToken(ctx context.Context, jti string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.tokens[jti]; ok {
		row.Revoked = true
	}
	return nil
}

// RevokeAllForUser flags every unrevoked row owned by userID.
func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.tokens {
		if row.UserID == userID {
			row.Revoked = true
		}
	}
	return nil
}
