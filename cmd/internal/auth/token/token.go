package token

import (
	"errors"
	"time"

	"maraudersmap/cmd/identity/ids"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claims. Callers that expect a specific class of token must
// check Claims.Type against these; the verifier itself only enforces
// signature, expiry, and claim shape.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	UserID    string
	Role      string
	Type      string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// wireClaims is the JWT payload shape on the wire.
type wireClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256-signed access and refresh tokens.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager constructs a Manager from explicit configuration.
// It fails with ErrNoSecret when the signing secret is absent and ErrConfig
// when a TTL is non-positive; both are startup-fatal conditions.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrConfig
	}
	return &Manager{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// IssueAccess mints a stateless access token carrying the user id and role.
func (m *Manager) IssueAccess(userID, role string, now time.Time) (signed string, exp time.Time, err error) {
	exp = now.Add(m.accessTTL)

	claims := wireClaims{
		UserID: userID,
		Role:   role,
		Type:   TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh mints a refresh token with a unique jti. The jti is the
// persistence key of the refresh-token ledger: one jti identifies exactly
// one issuance event.
func (m *Manager) IssueRefresh(userID string, now time.Time) (signed, jti string, exp time.Time, err error) {
	jti, err = ids.NewULID(now)
	if err != nil {
		return "", "", time.Time{}, err
	}
	exp = now.Add(m.refreshTTL)

	claims := wireClaims{
		UserID: userID,
		Type:   TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

// Verify checks signature, expiry, and claim shape, in that order of
// reported failure. It never consults storage: revocation is the session
// layer's concern, keyed by Claims.JTI.
func (m *Manager) Verify(raw string, now time.Time) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	var wc wireClaims
	parsed, err := parser.ParseWithClaims(raw, &wc, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, ErrMalformed
		}
	}
	if !parsed.Valid || wc.UserID == "" || wc.Type == "" {
		return Claims{}, ErrMalformed
	}

	out := Claims{
		UserID: wc.UserID,
		Role:   wc.Role,
		Type:   wc.Type,
		JTI:    wc.ID,
	}
	if wc.IssuedAt != nil {
		out.IssuedAt = wc.IssuedAt.Time
	}
	if wc.ExpiresAt != nil {
		out.ExpiresAt = wc.ExpiresAt.Time
	}
	return out, nil
}
