// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database path, the integrity core
// (idempotency, locking, report cache), the event bus, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "setlogs")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// IdempotencyConfig tunes the idempotency ledger.
type IdempotencyConfig struct {
	Lease            time.Duration // IDEMPOTENCY_LEASE: placeholder ownership before reclaim
	WaitTimeout      time.Duration // IDEMPOTENCY_WAIT_TIMEOUT: bounded wait on an in-flight duplicate
	PollInterval     time.Duration // IDEMPOTENCY_POLL_INTERVAL
	Retention        time.Duration // IDEMPOTENCY_RETENTION: replay window for completed keys
	ReapInterval     time.Duration // IDEMPOTENCY_REAP_INTERVAL
	RequireExercises bool          // IDEMPOTENCY_REQUIRE_EXERCISES
	RequireSessions  bool          // IDEMPOTENCY_REQUIRE_SESSIONS
}

// LockingConfig tunes the optimistic lock coordinator.
type LockingConfig struct {
	WaitTimeout time.Duration // LOCK_WAIT_TIMEOUT: upper bound on a guarded transaction
}

// CacheConfig selects and tunes the progression report cache.
type CacheConfig struct {
	Backend      string        // CACHE_BACKEND: sql|redis|none
	CollapseWait time.Duration // CACHE_COLLAPSE_WAIT: wait on a concurrent recompute
	TTL          time.Duration // CACHE_TTL: redis entry expiry (0 = none)
}

// RedisConfig is the shared Redis connection, used by the redis cache and
// event backends.
type RedisConfig struct {
	Addr     string // REDIS_ADDR
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// EventsConfig selects the post-commit mutation event bus.
type EventsConfig struct {
	Backend   string // EVENTS_BACKEND: memory|redis|none
	Stream    string // EVENTS_STREAM: topic / stream name
	Group     string // EVENTS_GROUP: redis consumer group
	Consumer  string // EVENTS_CONSUMER: redis consumer name
	WarmCache bool   // EVENTS_WARM_CACHE: recompute reports after set writes
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath   string // SQLite path
	SeedPath string // default YAML fixture for `setlogs seed`

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Integrity core
	Idempotency IdempotencyConfig
	Locking     LockingConfig
	Cache       CacheConfig

	// Infrastructure
	Redis  RedisConfig
	Events EventsConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:   getenv("DB_PATH", "setlogs.db"),
		SeedPath: getenv("SEED_PATH", "data/seed.yaml"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Integrity core
		Idempotency: IdempotencyConfig{
			Lease:            getdur("IDEMPOTENCY_LEASE", 30*time.Second),
			WaitTimeout:      getdur("IDEMPOTENCY_WAIT_TIMEOUT", 5*time.Second),
			PollInterval:     getdur("IDEMPOTENCY_POLL_INTERVAL", 50*time.Millisecond),
			Retention:        getdur("IDEMPOTENCY_RETENTION", 24*time.Hour),
			ReapInterval:     getdur("IDEMPOTENCY_REAP_INTERVAL", 10*time.Minute),
			RequireExercises: getbool("IDEMPOTENCY_REQUIRE_EXERCISES", false),
			RequireSessions:  getbool("IDEMPOTENCY_REQUIRE_SESSIONS", false),
		},
		Locking: LockingConfig{
			WaitTimeout: getdur("LOCK_WAIT_TIMEOUT", 5*time.Second),
		},
		Cache: CacheConfig{
			Backend:      strings.ToLower(getenv("CACHE_BACKEND", "sql")),
			CollapseWait: getdur("CACHE_COLLAPSE_WAIT", 2*time.Second),
			TTL:          getdur("CACHE_TTL", 0),
		},

		// Infrastructure
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Backend:   strings.ToLower(getenv("EVENTS_BACKEND", "memory")),
			Stream:    getenv("EVENTS_STREAM", "setlogs.mutations"),
			Group:     getenv("EVENTS_GROUP", "setlogs"),
			Consumer:  getenv("EVENTS_CONSUMER", hostname()),
			WarmCache: getbool("EVENTS_WARM_CACHE", true),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "setlogs"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Idempotency.Lease <= 0 || cfg.Idempotency.WaitTimeout <= 0 || cfg.Idempotency.PollInterval <= 0 {
		return cfg, errors.New("IDEMPOTENCY_LEASE, IDEMPOTENCY_WAIT_TIMEOUT and IDEMPOTENCY_POLL_INTERVAL must be > 0")
	}
	if cfg.Idempotency.PollInterval > cfg.Idempotency.WaitTimeout {
		return cfg, errors.New("IDEMPOTENCY_POLL_INTERVAL must not exceed IDEMPOTENCY_WAIT_TIMEOUT")
	}
	if cfg.Idempotency.Retention <= 0 || cfg.Idempotency.ReapInterval <= 0 {
		return cfg, errors.New("IDEMPOTENCY_RETENTION and IDEMPOTENCY_REAP_INTERVAL must be > 0")
	}
	if cfg.Locking.WaitTimeout <= 0 {
		return cfg, errors.New("LOCK_WAIT_TIMEOUT must be > 0")
	}
	switch cfg.Cache.Backend {
	case "sql", "redis", "none":
	default:
		return cfg, errors.New("CACHE_BACKEND must be one of: sql, redis, none")
	}
	if cfg.Cache.CollapseWait <= 0 {
		return cfg, errors.New("CACHE_COLLAPSE_WAIT must be > 0")
	}
	if cfg.Cache.TTL < 0 {
		return cfg, errors.New("CACHE_TTL must be >= 0")
	}
	switch cfg.Events.Backend {
	case "memory", "redis", "none":
	default:
		return cfg, errors.New("EVENTS_BACKEND must be one of: memory, redis, none")
	}
	if (cfg.Cache.Backend == "redis" || cfg.Events.Backend == "redis") && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must be set when a redis backend is selected")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// hostname names this process's redis stream consumer by default.
func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "setlogs"
	}
	return h
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
