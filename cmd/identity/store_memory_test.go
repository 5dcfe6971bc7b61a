package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustCreateUser(t *testing.T, s *MemoryStore, email string) User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), CreateUserInput{
		Email:        email,
		PasswordHash: "$2b$10$fakefakefakefakefakefakefakefakefakefakefakefakefakef",
		FirstName:    "Test",
		LastName:     "Student",
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestMemoryStore_CreateUser_EmailConflict(t *testing.T) {
	s := NewMemoryStore()
	mustCreateUser(t, s, "test.student@hogwarts.edu")

	_, err := s.CreateUser(context.Background(), CreateUserInput{
		Email:        "test.student@hogwarts.edu",
		PasswordHash: "hash",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestMemoryStore_CreateUser_DefaultsToStudent(t *testing.T) {
	s := NewMemoryStore()
	u := mustCreateUser(t, s, "neville.longbottom@hogwarts.edu")
	if u.Role != RoleStudent {
		t.Fatalf("role = %q, want %q", u.Role, RoleStudent)
	}
}

func TestMemoryStore_GetUserByEmail_NotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetUserByEmail(context.Background(), "nobody@hogwarts.edu"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RotateRefreshToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	u := mustCreateUser(t, s, "harry.potter@hogwarts.edu")

	old := RefreshToken{JTI: "jti-old", UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := s.InsertRefreshToken(ctx, old); err != nil {
		t.Fatalf("InsertRefreshToken: %v", err)
	}

	next := RefreshToken{JTI: "jti-new", UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := s.RotateRefreshToken(ctx, "jti-old", next); err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}

	got, err := s.GetRefreshToken(ctx, "jti-old")
	if err != nil {
		t.Fatalf("GetRefreshToken: %v", err)
	}
	if !got.Revoked {
		t.Fatalf("old row not revoked after rotation")
	}

	fresh, err := s.GetRefreshToken(ctx, "jti-new")
	if err != nil {
		t.Fatalf("GetRefreshToken: %v", err)
	}
	if fresh.Revoked {
		t.Fatalf("replacement row must start unrevoked")
	}

	// Second rotation of the same lineage must lose.
	err = s.RotateRefreshToken(ctx, "jti-old", RefreshToken{JTI: "jti-third", UserID: u.ID, ExpiresAt: now.Add(time.Hour)})
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("want ErrRevoked, got %v", err)
	}
}

func TestMemoryStore_RotateRefreshToken_NotFound(t *testing.T) {
	s := NewMemoryStore()
	err := s.RotateRefreshToken(context.Background(), "missing", RefreshToken{JTI: "x", UserID: "u"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RevokeRefreshToken_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.RevokeRefreshToken(ctx, "never-issued"); err != nil {
		t.Fatalf("revoking unknown jti must be a no-op success, got %v", err)
	}
	if err := s.RevokeRefreshToken(ctx, "never-issued"); err != nil {
		t.Fatalf("second revoke must also succeed, got %v", err)
	}
}

func TestMemoryStore_RevokeAllForUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	u := mustCreateUser(t, s, "hermione.granger@hogwarts.edu")
	other := mustCreateUser(t, s, "ron.weasley@hogwarts.edu")

	for _, jti := range []string{"a", "b"} {
		if err := s.InsertRefreshToken(ctx, RefreshToken{JTI: jti, UserID: u.ID, ExpiresAt: now.Add(time.Hour)}); err != nil {
			t.Fatalf("InsertRefreshToken: %v", err)
		}
	}
	if err := s.InsertRefreshToken(ctx, RefreshToken{JTI: "c", UserID: other.ID, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("InsertRefreshToken: %v", err)
	}

	if err := s.RevokeAllForUser(ctx, u.ID); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	for _, jti := range []string{"a", "b"} {
		row, _ := s.GetRefreshToken(ctx, jti)
		if !row.Revoked {
			t.Fatalf("row %q not revoked", jti)
		}
	}
	row, _ := s.GetRefreshToken(ctx, "c")
	if row.Revoked {
		t.Fatalf("unrelated user's token was revoked")
	}
}
