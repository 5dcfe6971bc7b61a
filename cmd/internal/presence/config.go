package presence

import (
	"os"
	"strings"
	"time"
)

const (
	// A session counts as online while its last heartbeat is this recent.
	defaultOnlineWindow = 60 * time.Second

	// The sweep reaps sessions idle longer than this.
	defaultStaleAfter = 60 * time.Second

	// How often the background sweep runs.
	defaultSweepEvery = 2 * time.Minute
)

// Config holds the tracker's liveness knobs.
type Config struct {
	OnlineWindow time.Duration
	StaleAfter   time.Duration
	SweepEvery   time.Duration
}

// DefaultConfig returns the reference cadence: 60s online window, 60s
// staleness threshold, sweep every 2 minutes.
func DefaultConfig() Config {
	return Config{
		OnlineWindow: defaultOnlineWindow,
		StaleAfter:   defaultStaleAfter,
		SweepEvery:   defaultSweepEvery,
	}
}

// LoadConfigFromEnv reads overrides from the environment, falling back to
// defaults for anything unset or unparsable.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.OnlineWindow = envDuration("MM_PRESENCE_ONLINE_WINDOW", cfg.OnlineWindow)
	cfg.StaleAfter = envDuration("MM_PRESENCE_STALE_AFTER", cfg.StaleAfter)
	cfg.SweepEvery = envDuration("MM_PRESENCE_SWEEP_EVERY", cfg.SweepEvery)
	return cfg
}

func (c Config) withDefaults() Config {
	if c.OnlineWindow <= 0 {
		c.OnlineWindow = defaultOnlineWindow
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = defaultSweepEvery
	}
	return c
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
