package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T, secret string) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Secret = secret

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManager_NoSecret(t *testing.T) {
	if _, err := NewManager(DefaultConfig()); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("want ErrNoSecret, got %v", err)
	}
}

func TestIssueAccess_ClaimsAndLifetime(t *testing.T) {
	m := newTestManager(t, "test-secret-at-least-32-bytes-long")
	now := time.Now().UTC().Truncate(time.Second)

	signed, exp, err := m.IssueAccess("01HZUSER", "AUROR", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if got := strings.Count(signed, "."); got != 2 {
		t.Fatalf("want 3 dot-separated segments, got %d dots", got)
	}
	if want := now.Add(15 * time.Minute); !exp.Equal(want) {
		t.Fatalf("exp = %v, want %v", exp, want)
	}

	claims, err := m.Verify(signed, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Type != TypeAccess {
		t.Fatalf("type = %q, want %q", claims.Type, TypeAccess)
	}
	if claims.UserID != "01HZUSER" || claims.Role != "AUROR" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 900*time.Second {
		t.Fatalf("exp - iat = %v, want 900s", got)
	}
}

func TestIssueRefresh_JTIAndLifetime(t *testing.T) {
	m := newTestManager(t, "test-secret-at-least-32-bytes-long")
	now := time.Now().UTC().Truncate(time.Second)

	signed, jti, _, err := m.IssueRefresh("01HZUSER", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if jti == "" {
		t.Fatalf("missing jti")
	}

	claims, err := m.Verify(signed, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Type != TypeRefresh {
		t.Fatalf("type = %q, want %q", claims.Type, TypeRefresh)
	}
	if claims.JTI != jti {
		t.Fatalf("jti = %q, want %q", claims.JTI, jti)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 604800*time.Second {
		t.Fatalf("exp - iat = %v, want 604800s", got)
	}
}

func TestIssueRefresh_JTIUniquePerIssuance(t *testing.T) {
	m := newTestManager(t, "test-secret-at-least-32-bytes-long")
	now := time.Now().UTC()

	_, jti1, _, err := m.IssueRefresh("01HZUSER", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	_, jti2, _, err := m.IssueRefresh("01HZUSER", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if jti1 == jti2 {
		t.Fatalf("expected distinct jti per issuance")
	}
}

func TestVerify_ErrorKinds(t *testing.T) {
	m := newTestManager(t, "test-secret-at-least-32-bytes-long")
	other := newTestManager(t, "another-secret-entirely-32-bytes!!")
	now := time.Now().UTC()

	foreign, _, err := other.IssueAccess("01HZUSER", "STUDENT", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	expired, _, err := m.IssueAccess("01HZUSER", "STUDENT", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"foreign signer", foreign, ErrInvalidSignature},
		{"expired", expired, ErrExpired},
		{"garbage", "not.a.jwt", ErrMalformed},
		{"empty", "", ErrMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Verify(tc.raw, now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Verify(%q) = %v, want %v", tc.name, err, tc.want)
			}
		})
	}
}

func TestVerify_ForeignSignerIsSignatureNotExpired(t *testing.T) {
	m := newTestManager(t, "test-secret-at-least-32-bytes-long")
	other := newTestManager(t, "another-secret-entirely-32-bytes!!")
	now := time.Now().UTC()

	// Signed by a different secret AND already expired: the signature check
	// must win over the expiry check.
	raw, _, err := other.IssueAccess("01HZUSER", "STUDENT", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	_, err = m.Verify(raw, now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}
