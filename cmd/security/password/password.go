package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt cost factor. Cost 10 lands around ~100ms per
	// hash on commodity hardware: slow enough to resist brute force, fast
	// enough to sit on the login path.
	DefaultCost = 10

	// MinLength is the baseline password policy minimum.
	MinLength = 8

	// maxLength is bcrypt's effective input limit; longer inputs are
	// silently truncated by the algorithm, so we reject them instead.
	maxLength = 72
)

// Hasher hashes and verifies passwords with a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher constructs a Hasher. An out-of-range cost falls back to DefaultCost.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plain.
// The salt is random per call: hashing the same plaintext twice yields two
// different strings, both of which verify.
func (h Hasher) Hash(plain string) (string, error) {
	if len(plain) < MinLength {
		return "", ErrPasswordTooShort
	}
	if len(plain) > maxLength {
		return "", ErrPasswordTooLong
	}

	cost := h.cost
	if cost == 0 {
		cost = DefaultCost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches the stored bcrypt hash.
// A wrong password is (false, nil). ErrInvalidHash is returned only when the
// stored hash cannot be parsed as bcrypt output.
func (h Hasher) Verify(plain, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	// Anything else is a structural problem with the stored hash.
	return false, ErrInvalidHash
}
