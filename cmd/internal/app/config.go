package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("MM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("MM_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("MM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("MM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("MM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("MM_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("MM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("MM_DATABASE_URL", ""),
		DBSchema:    EnvString("MM_DB_SCHEMA", "marauders"),
		DBMaxConns:  EnvInt32("MM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("MM_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("MM_READINESS_REQUIRE_DB", false),
	}
}
