package session

import (
	"os"
	"strconv"
	"strings"
)

// Config controls registration policy and password-change behavior.
type Config struct {
	// MinPasswordLength is the registration/change policy minimum.
	MinPasswordLength int

	// EmailDomain, when non-empty, is the required email suffix for
	// registration (e.g. "@hogwarts.edu"). Login is unaffected.
	EmailDomain string

	// RevokeOnPasswordChange revokes all outstanding refresh tokens for a
	// user after a successful password change.
	RevokeOnPasswordChange bool
}

// DefaultConfig returns the reference policy.
func DefaultConfig() Config {
	return Config{
		MinPasswordLength:      8,
		EmailDomain:            "@hogwarts.edu",
		RevokeOnPasswordChange: true,
	}
}

// LoadConfigFromEnv loads session policy from environment variables.
//
// Optional:
//   - MM_AUTH_MIN_PASSWORD_LENGTH
//   - MM_AUTH_EMAIL_DOMAIN (empty string disables the domain check)
//   - MM_AUTH_REVOKE_ON_PASSWORD_CHANGE
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("MM_AUTH_MIN_PASSWORD_LENGTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 8 {
			cfg.MinPasswordLength = n
		}
	}

	if v, ok := os.LookupEnv("MM_AUTH_EMAIL_DOMAIN"); ok {
		cfg.EmailDomain = strings.TrimSpace(v)
	}

	if v := strings.TrimSpace(os.Getenv("MM_AUTH_REVOKE_ON_PASSWORD_CHANGE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RevokeOnPasswordChange = b
		}
	}

	return cfg
}
