package token

import (
	"os"
	"time"
)

// Config defines runtime configuration for token issuance and verification.
//
// The signing secret is process-wide, loaded once at startup and never
// rotated mid-process. It is injected here explicitly rather than read from
// ambient globals at call time.
type Config struct {
	// Secret is the HMAC-SHA256 signing secret. Required.
	Secret string

	// AccessTTL is the access token lifetime.
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime.
	RefreshTTL time.Duration
}

// DefaultConfig returns the reference lifetimes: 15 minute access tokens,
// 7 day refresh tokens.
func DefaultConfig() Config {
	return Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - MM_JWT_SECRET
//
// Optional (valid Go duration strings):
//   - MM_AUTH_ACCESS_TTL
//   - MM_AUTH_REFRESH_TTL
//
// A missing secret surfaces as ErrNoSecret from NewManager; invalid
// durations return ErrConfig here.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("MM_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("MM_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	cfg.Secret = os.Getenv("MM_JWT_SECRET")
	return cfg, nil
}
