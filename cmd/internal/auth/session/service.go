package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"maraudersmap/cmd/identity"
	"maraudersmap/cmd/internal/auth/token"
	"maraudersmap/cmd/security/password"
)

// Service implements the high-level auth operations for Marauder's Map.
//
// All dependencies are injected: the credential store, the password hasher,
// and the token manager with its signing secret. There is no ambient global
// state, and the caller supplies the clock by passing now into each
// operation.
type Service struct {
	log    *slog.Logger
	cfg    Config
	store  identity.Store
	hasher password.Hasher
	tokens *token.Manager

	// dummyHash absorbs a bcrypt comparison when login hits an unknown
	// email, so the two failure paths cost about the same.
	dummyHash string
}

// LoginResult is the outcome of a successful credential login.
type LoginResult struct {
	User         identity.User
	AccessToken  string
	RefreshToken string
}

// RefreshResult is the outcome of a successful refresh rotation.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// RegisterInput describes a registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// NewService constructs a Service.
func NewService(log *slog.Logger, cfg Config, store identity.Store, hasher password.Hasher, tokens *token.Manager) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if tokens == nil {
		return nil, errors.New("session: nil token manager")
	}
	if cfg.MinPasswordLength < password.MinLength {
		cfg.MinPasswordLength = password.MinLength
	}

	dummy, err := hasher.Hash("correct-horse-battery-staple")
	if err != nil {
		return nil, err
	}

	return &Service{
		log:       log,
		cfg:       cfg,
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		dummyHash: dummy,
	}, nil
}

// Register creates a new user with the default STUDENT role.
func (s *Service) Register(ctx context.Context, in RegisterInput, now time.Time) (identity.User, error) {
	if strings.TrimSpace(in.Email) == "" {
		return identity.User{}, ValidationError{Field: "email", Reason: "required"}
	}
	if in.Password == "" {
		return identity.User{}, ValidationError{Field: "password", Reason: "required"}
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return identity.User{}, ValidationError{Field: "firstName", Reason: "required"}
	}
	if strings.TrimSpace(in.LastName) == "" {
		return identity.User{}, ValidationError{Field: "lastName", Reason: "required"}
	}

	emailNorm := identity.NormalizeEmail(in.Email)
	if s.cfg.EmailDomain != "" && !strings.HasSuffix(emailNorm, s.cfg.EmailDomain) {
		return identity.User{}, ValidationError{Field: "email", Reason: "must end with " + s.cfg.EmailDomain}
	}
	if len(in.Password) < s.cfg.MinPasswordLength {
		return identity.User{}, ErrWeakPassword
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return identity.User{}, err
	}

	u, err := s.store.CreateUser(ctx, identity.CreateUserInput{
		Email:        emailNorm,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         identity.RoleStudent,
		Now:          now,
	})
	if errors.Is(err, identity.ErrConflict) {
		return identity.User{}, ErrEmailTaken
	}
	if err != nil {
		return identity.User{}, err
	}

	s.log.Info("auth.register", "user_id", u.ID, "role", u.Role)
	return u.Sanitized(), nil
}

// Login verifies credentials and issues a fresh access+refresh pair,
// persisting the refresh issuance in the ledger.
//
// Both failure paths (unknown email, wrong password) return the identical
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, plain string, now time.Time) (LoginResult, error) {
	if strings.TrimSpace(email) == "" {
		return LoginResult{}, ValidationError{Field: "email", Reason: "required"}
	}
	if plain == "" {
		return LoginResult{}, ValidationError{Field: "password", Reason: "required"}
	}

	u, err := s.store.GetUserByEmail(ctx, identity.NormalizeEmail(email))
	if errors.Is(err, identity.ErrNotFound) {
		// Burn a comparison anyway so the miss costs as much as a mismatch.
		_, _ = s.hasher.Verify(plain, s.dummyHash)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	ok, err := s.hasher.Verify(plain, u.PasswordHash)
	if err != nil {
		s.log.Error("auth.login.hash_malformed", "user_id", u.ID, "err", err)
		return LoginResult{}, ErrInvalidCredentials
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	access, _, err := s.tokens.IssueAccess(u.ID, string(u.Role), now)
	if err != nil {
		return LoginResult{}, err
	}

	refresh, jti, exp, err := s.tokens.IssueRefresh(u.ID, now)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.store.InsertRefreshToken(ctx, identity.RefreshToken{
		JTI:       jti,
		UserID:    u.ID,
		ExpiresAt: exp,
		CreatedAt: now,
	}); err != nil {
		return LoginResult{}, err
	}

	s.log.Info("auth.login", "user_id", u.ID)
	return LoginResult{
		User:         u.Sanitized(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Refresh rotates a refresh token: it verifies signature/expiry/type, then
// issues a new access+refresh pair and atomically replaces the old ledger
// row with the new one. The old jti is unusable once Refresh returns.
//
// Ordering: verify -> issue new -> persist new -> revoke old. The store's
// RotateRefreshToken performs the last two steps in one transaction, so two
// concurrent refreshes of the same token cannot both succeed.
func (s *Service) Refresh(ctx context.Context, refreshToken string, now time.Time) (RefreshResult, error) {
	claims, err := s.tokens.Verify(refreshToken, now)
	if err != nil {
		return RefreshResult{}, err
	}
	if claims.Type != token.TypeRefresh {
		return RefreshResult{}, ErrWrongTokenType
	}
	if claims.JTI == "" {
		return RefreshResult{}, token.ErrMalformed
	}

	// Role for the new access token comes from the user record, not from
	// the old token: a role change takes effect on the next rotation.
	u, err := s.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, identity.ErrNotFound) {
		return RefreshResult{}, ErrTokenNotFound
	}
	if err != nil {
		return RefreshResult{}, err
	}

	access, _, err := s.tokens.IssueAccess(u.ID, string(u.Role), now)
	if err != nil {
		return RefreshResult{}, err
	}

	refresh, jti, exp, err := s.tokens.IssueRefresh(u.ID, now)
	if err != nil {
		return RefreshResult{}, err
	}

	err = s.store.RotateRefreshToken(ctx, claims.JTI, identity.RefreshToken{
		JTI:       jti,
		UserID:    u.ID,
		ExpiresAt: exp,
		CreatedAt: now,
	})
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return RefreshResult{}, ErrTokenNotFound
	case errors.Is(err, identity.ErrRevoked):
		return RefreshResult{}, ErrTokenRevoked
	case err != nil:
		return RefreshResult{}, err
	}

	s.log.Info("auth.refresh", "user_id", u.ID)
	return RefreshResult{AccessToken: access, RefreshToken: refresh}, nil
}

// Revoke flags a refresh token revoked (logout). It never fails from the
// caller's perspective: unknown jti, already-revoked jti, and even storage
// errors all report success, with failures logged server-side only.
func (s *Service) Revoke(ctx context.Context, jti string) {
	if jti == "" {
		return
	}
	if err := s.store.RevokeRefreshToken(ctx, jti); err != nil {
		s.log.Error("auth.revoke.fail", "err", err)
	}
}

// RevokeFromToken extracts the jti from a presented refresh token and
// revokes it. Garbage input is swallowed: logout always succeeds.
func (s *Service) RevokeFromToken(ctx context.Context, refreshToken string, now time.Time) {
	claims, err := s.tokens.Verify(refreshToken, now)
	if err != nil || claims.Type != token.TypeRefresh {
		return
	}
	s.Revoke(ctx, claims.JTI)
}

// ChangePassword re-verifies the old password before accepting the new one.
// When RevokeOnPasswordChange is set, every outstanding refresh token for
// the user is revoked afterwards, forcing re-login everywhere.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPlain, newPlain string, now time.Time) error {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(oldPlain, u.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIncorrectPassword
	}

	if len(newPlain) < s.cfg.MinPasswordLength {
		return ErrWeakPassword
	}
	if newPlain == oldPlain {
		return ErrSamePassword
	}

	hash, err := s.hasher.Hash(newPlain)
	if err != nil {
		return err
	}

	if err := s.store.UpdatePasswordHash(ctx, userID, hash, now); err != nil {
		return err
	}

	if s.cfg.RevokeOnPasswordChange {
		if err := s.store.RevokeAllForUser(ctx, userID); err != nil {
			// The password is already changed; failing the call now would
			// only confuse the user. Log and move on.
			s.log.Error("auth.change_password.revoke_all.fail", "user_id", userID, "err", err)
		}
	}

	s.log.Info("auth.change_password", "user_id", userID)
	return nil
}

// VerifyAccess validates an access token: signature, expiry, and the
// type=access claim. Stateless: no ledger lookup on this path.
func (s *Service) VerifyAccess(raw string, now time.Time) (token.Claims, error) {
	claims, err := s.tokens.Verify(raw, now)
	if err != nil {
		return token.Claims{}, err
	}
	if claims.Type != token.TypeAccess {
		return token.Claims{}, ErrWrongTokenType
	}
	return claims, nil
}
