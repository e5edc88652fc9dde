// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, the database, the remote platform client, the relay
// queue, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Rate-limit policies applied when the remote platform reports that the
// account exceeded its posting quota.
const (
	RateLimitDequeue = "dequeue"
	RateLimitRetry   = "retry"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "relayd")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// PlatformConfig describes the remote platform the relay publishes to.
type PlatformConfig struct {
	Name      string        // PLATFORM_NAME, also the origin-source tag of messages imported from it
	GraphURL  string        // token-based API base URL
	RESTURL   string        // legacy permission-based API base URL
	AppID     string        // resolved application id (local, else global)
	AppSecret string        // resolved application secret (local, else global)
	Timeout   time.Duration // per remote call
	RPS       float64       // outbound calls per second (0 disables throttling)
	Burst     int
}

// QueueConfig controls the relay job consumer.
type QueueConfig struct {
	Workers        int
	PollInterval   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Lease          time.Duration // processing jobs older than this are handed out again
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
	APIBasePath       string        // base path for API routes

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Database
	DBDriver string // sqlite|postgres
	DBPath   string // SQLite path
	DBDSN    string // Postgres DSN

	// Remote platform
	Platform PlatformConfig

	// Relay
	RateLimitPolicy string // dequeue|retry
	SiteName        string
	DefaultLocale   string

	// Queue
	Queue QueueConfig

	// HTTP rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

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
	appID, appSecret := getenv("PLATFORM_APP_ID", ""), getenv("PLATFORM_APP_SECRET", "")
	if appID == "" || appSecret == "" {
		appID = getenv("PLATFORM_GLOBAL_APP_ID", "")
		appSecret = getenv("PLATFORM_GLOBAL_APP_SECRET", "")
	}

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Database
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:   getenv("DB_PATH", "relay.db"),
		DBDSN:    getenv("DB_DSN", ""),

		// Remote platform
		Platform: PlatformConfig{
			Name:      getenv("PLATFORM_NAME", "Facebook"),
			GraphURL:  strings.TrimRight(getenv("PLATFORM_GRAPH_URL", "https://graph.facebook.com"), "/"),
			RESTURL:   strings.TrimRight(getenv("PLATFORM_REST_URL", "https://api.facebook.com"), "/"),
			AppID:     appID,
			AppSecret: appSecret,
			Timeout:   getdur("PLATFORM_TIMEOUT", 10*time.Second),
			RPS:       getfloat("PLATFORM_RPS", 10),
			Burst:     getint("PLATFORM_BURST", 5),
		},

		// Relay
		RateLimitPolicy: strings.ToLower(getenv("RELAY_RATE_LIMIT_POLICY", RateLimitDequeue)),
		SiteName:        getenv("SITE_NAME", "Relay"),
		DefaultLocale:   getenv("DEFAULT_LOCALE", "en"),

		// Queue
		Queue: QueueConfig{
			Workers:        getint("QUEUE_WORKERS", 2),
			PollInterval:   getdur("QUEUE_POLL_INTERVAL", time.Second),
			MaxAttempts:    getint("QUEUE_MAX_ATTEMPTS", 8),
			BackoffInitial: getdur("QUEUE_BACKOFF_INITIAL", 30*time.Second),
			BackoffMax:     getdur("QUEUE_BACKOFF_MAX", time.Hour),
			Lease:          getdur("QUEUE_LEASE", 5*time.Minute),
		},

		// HTTP rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "relayd"),
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
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
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
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return cfg, errors.New("DB_DSN must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.Platform.Name) == "" {
		return cfg, errors.New("PLATFORM_NAME must not be empty")
	}
	if cfg.Platform.Timeout <= 0 {
		return cfg, errors.New("PLATFORM_TIMEOUT must be > 0")
	}
	if cfg.Platform.RPS < 0 {
		return cfg, errors.New("PLATFORM_RPS must be >= 0")
	}
	if cfg.Platform.Burst < 1 {
		return cfg, errors.New("PLATFORM_BURST must be >= 1")
	}
	switch cfg.RateLimitPolicy {
	case RateLimitDequeue, RateLimitRetry:
	default:
		return cfg, errors.New("RELAY_RATE_LIMIT_POLICY must be one of: dequeue, retry")
	}
	if cfg.Queue.Workers < 1 {
		return cfg, errors.New("QUEUE_WORKERS must be >= 1")
	}
	if cfg.Queue.PollInterval <= 0 || cfg.Queue.Lease <= 0 {
		return cfg, errors.New("QUEUE_POLL_INTERVAL and QUEUE_LEASE must be positive durations")
	}
	if cfg.Queue.MaxAttempts < 1 {
		return cfg, errors.New("QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Queue.BackoffInitial <= 0 || cfg.Queue.BackoffMax < cfg.Queue.BackoffInitial {
		return cfg, errors.New("QUEUE_BACKOFF_INITIAL must be > 0 and <= QUEUE_BACKOFF_MAX")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
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
