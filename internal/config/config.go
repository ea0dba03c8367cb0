// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// presence and matching thresholds, notification pacing, rate limiting,
// and observability options.
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// PresenceConfig holds soft-state liveness thresholds. StaleThreshold must
// stay several heartbeat intervals wide so missed beats do not flap a
// listener's visible availability.
type PresenceConfig struct {
	HeartbeatInterval   time.Duration // what clients are told to beat at
	StaleThreshold      time.Duration // heartbeat age after which a listener is unreachable
	RequestingReapAfter time.Duration // stuck "requesting" profiles older than this go offline
}

// NotifyConfig paces the notification dispatcher.
type NotifyConfig struct {
	WaveDelay          time.Duration // favorites wave → general wave gap
	RenotifyMinDelay   time.Duration // minimum gap before a reminder wave
	RenotifyMax        int           // bounded number of reminder waves
	DispatchPerMinute  int           // per-seeker dispatch triggers per rolling minute
	DispatchBurst      int           // token bucket burst for dispatch triggers
	PushDeliverTimeout time.Duration // per-recipient push/email delivery timeout
}

// SessionConfig holds lifecycle thresholds for the reaper.
type SessionConfig struct {
	NoMessageThreshold time.Duration // close sessions that never got a message
	InactiveThreshold  time.Duration // close sessions whose last message is this old
	ReaperInterval     time.Duration // server-side sweep cadence (0 disables)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// App
	DBPath          string
	CleanupSecret   string // shared secret for cron-driven cleanup calls
	MessageMaxRunes int    // hard cap on chat message length

	Presence PresenceConfig
	Notify   NotifyConfig
	Session  SessionConfig

	// Edge rate limiting (per user/IP, all endpoints)
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

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

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
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
		DBPath:          getenv("DB_PATH", "app.db"),
		CleanupSecret:   getenv("CLEANUP_SECRET", ""),
		MessageMaxRunes: getint("MESSAGE_MAX_RUNES", 2000),

		Presence: PresenceConfig{
			HeartbeatInterval:   getdur("HEARTBEAT_INTERVAL", 30*time.Second),
			StaleThreshold:      getdur("PRESENCE_STALE_THRESHOLD", 2*time.Minute),
			RequestingReapAfter: getdur("REQUESTING_REAP_AFTER", 30*time.Minute),
		},
		Notify: NotifyConfig{
			WaveDelay:          getdur("NOTIFY_WAVE_DELAY", 4*time.Second),
			RenotifyMinDelay:   getdur("RENOTIFY_MIN_DELAY", 2*time.Minute),
			RenotifyMax:        getint("RENOTIFY_MAX", 2),
			DispatchPerMinute:  getint("DISPATCH_PER_MINUTE", 3),
			DispatchBurst:      getint("DISPATCH_BURST", 3),
			PushDeliverTimeout: getdur("PUSH_DELIVER_TIMEOUT", 5*time.Second),
		},
		Session: SessionConfig{
			NoMessageThreshold: getdur("SESSION_NO_MESSAGE_THRESHOLD", 30*time.Minute),
			InactiveThreshold:  getdur("SESSION_INACTIVE_THRESHOLD", 24*time.Hour),
			ReaperInterval:     getdur("SESSION_REAPER_INTERVAL", 10*time.Minute),
		},

		// Edge rate limiting
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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-support-backend"),
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
	if cfg.Presence.HeartbeatInterval <= 0 || cfg.Presence.StaleThreshold <= 0 {
		return cfg, errors.New("presence intervals must be positive durations")
	}
	if cfg.Presence.StaleThreshold <= cfg.Presence.HeartbeatInterval {
		return cfg, errors.New("PRESENCE_STALE_THRESHOLD must exceed HEARTBEAT_INTERVAL")
	}
	if cfg.Presence.RequestingReapAfter <= cfg.Presence.StaleThreshold {
		return cfg, errors.New("REQUESTING_REAP_AFTER must exceed PRESENCE_STALE_THRESHOLD")
	}
	if cfg.Notify.WaveDelay < 0 || cfg.Notify.RenotifyMinDelay <= 0 {
		return cfg, errors.New("notify delays must be positive durations")
	}
	if cfg.Notify.RenotifyMax < 0 {
		return cfg, errors.New("RENOTIFY_MAX must be >= 0")
	}
	if cfg.Notify.DispatchPerMinute <= 0 {
		return cfg, errors.New("DISPATCH_PER_MINUTE must be > 0")
	}
	if cfg.MessageMaxRunes <= 0 {
		return cfg, errors.New("MESSAGE_MAX_RUNES must be > 0")
	}
	if cfg.Session.NoMessageThreshold <= 0 || cfg.Session.InactiveThreshold <= 0 {
		return cfg, errors.New("session thresholds must be positive durations")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
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
