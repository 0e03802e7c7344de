// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage retention, engagement thresholds,
// outreach scheduling, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dkurilov/go-companion-backend/internal/sysutil"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-companion-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// EngagementConfig defines mood thresholds and the outreach eligibility
// interval. Offended must stay strictly below Angry.
type EngagementConfig struct {
	OutreachInterval  time.Duration // OUTREACH_INTERVAL
	OffendedThreshold time.Duration // OFFENDED_THRESHOLD
	AngryThreshold    time.Duration // ANGRY_THRESHOLD
	SeenWindow        time.Duration // SEEN_WINDOW
}

// OutreachConfig defines the proactive scheduler loop settings.
type OutreachConfig struct {
	ScanTick      time.Duration // SCAN_TICK
	ErrorBackoff  time.Duration // ERROR_BACKOFF
	ScanBatch     int           // SCAN_BATCH
	DispatchDelay time.Duration // DISPATCH_DELAY
	EmbellishProb float64       // EMBELLISH_PROB in [0..1]
}

// LLMConfig defines the reply generation backend settings.
type LLMConfig struct {
	APIKey       string        // LLM_API_KEY
	Model        string        // LLM_MODEL
	BaseURL      string        // LLM_BASE_URL
	Temperature  float64       // LLM_TEMPERATURE
	MaxTokens    int           // LLM_MAX_TOKENS
	Timeout      time.Duration // LLM_TIMEOUT
	SystemPrompt string        // SYSTEM_PROMPT
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

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath          string        // SQLite path
	RetentionWindow time.Duration // dialog history retention
	CacheTTL        time.Duration // knowledge cache entry lifetime
	MaxContentRunes int           // stored message/content length cap
	ContextTail     int           // history turns fed to the generator
	PruneInterval   time.Duration // janitor sweep interval
	FallbackReply   string        // reply used when generation fails

	// Engagement and outreach
	Engagement EngagementConfig
	Outreach   OutreachConfig

	// Collaborators
	LLM           LLMConfig
	WikiLang      string // WIKI_LANG
	WikiBaseURL   string // WIKI_BASE_URL (optional override)
	TelegramToken string // TELEGRAM_TOKEN (empty disables delivery)

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

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

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:          getenv("DB_PATH", "app.db"),
		RetentionWindow: getdur("RETENTION_WINDOW", 24*time.Hour),
		CacheTTL:        getdur("CACHE_TTL", 168*time.Hour),
		MaxContentRunes: getint("MAX_CONTENT_RUNES", 4000),
		ContextTail:     getint("CONTEXT_TAIL", 6),
		PruneInterval:   getdur("PRUNE_INTERVAL", time.Hour),
		FallbackReply:   getenv("FALLBACK_REPLY", "Что-то я задумалась... Повтори, пожалуйста?"),

		// Engagement and outreach
		Engagement: EngagementConfig{
			OutreachInterval:  getdur("OUTREACH_INTERVAL", 3*time.Hour),
			OffendedThreshold: getdur("OFFENDED_THRESHOLD", 4*time.Hour),
			AngryThreshold:    getdur("ANGRY_THRESHOLD", 12*time.Hour),
			SeenWindow:        getdur("SEEN_WINDOW", time.Hour),
		},
		Outreach: OutreachConfig{
			ScanTick:      getdur("SCAN_TICK", 10*time.Minute),
			ErrorBackoff:  getdur("ERROR_BACKOFF", 5*time.Minute),
			ScanBatch:     getint("SCAN_BATCH", 10),
			DispatchDelay: getdur("DISPATCH_DELAY", 2*time.Second),
			EmbellishProb: getfloat("EMBELLISH_PROB", 0.2),
		},

		// Collaborators
		LLM: LLMConfig{
			APIKey:       getenv("LLM_API_KEY", ""),
			Model:        getenv("LLM_MODEL", "deepseek-chat"),
			BaseURL:      getenv("LLM_BASE_URL", ""),
			Temperature:  getfloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:    getint("LLM_MAX_TOKENS", 512),
			Timeout:      getdur("LLM_TIMEOUT", 30*time.Second),
			SystemPrompt: getenv("SYSTEM_PROMPT", ""),
		},
		WikiLang:      getenv("WIKI_LANG", "ru"),
		WikiBaseURL:   getenv("WIKI_BASE_URL", ""),
		TelegramToken: getenv("TELEGRAM_TOKEN", ""),

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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-companion-backend"),
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
	if cfg.RetentionWindow <= 0 {
		return cfg, errors.New("RETENTION_WINDOW must be > 0")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.MaxContentRunes <= 0 {
		return cfg, errors.New("MAX_CONTENT_RUNES must be > 0")
	}
	if cfg.ContextTail < 0 {
		return cfg, errors.New("CONTEXT_TAIL must be >= 0")
	}
	if cfg.PruneInterval <= 0 {
		return cfg, errors.New("PRUNE_INTERVAL must be > 0")
	}
	if cfg.Engagement.OutreachInterval <= 0 {
		return cfg, errors.New("OUTREACH_INTERVAL must be > 0")
	}
	if cfg.Engagement.OffendedThreshold <= 0 || cfg.Engagement.AngryThreshold <= 0 {
		return cfg, errors.New("mood thresholds must be positive durations")
	}
	if cfg.Engagement.OffendedThreshold >= cfg.Engagement.AngryThreshold {
		return cfg, errors.New("OFFENDED_THRESHOLD must be less than ANGRY_THRESHOLD")
	}
	if cfg.Engagement.SeenWindow <= 0 {
		return cfg, errors.New("SEEN_WINDOW must be > 0")
	}
	if cfg.Outreach.ScanTick <= 0 || cfg.Outreach.ErrorBackoff <= 0 {
		return cfg, errors.New("SCAN_TICK and ERROR_BACKOFF must be positive durations")
	}
	if cfg.Outreach.ScanBatch < 1 {
		return cfg, errors.New("SCAN_BATCH must be >= 1")
	}
	if cfg.Outreach.DispatchDelay < 0 {
		return cfg, errors.New("DISPATCH_DELAY must be >= 0")
	}
	if cfg.Outreach.EmbellishProb < 0 || cfg.Outreach.EmbellishProb > 1 {
		return cfg, errors.New("EMBELLISH_PROB must be in [0,1]")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return cfg, errors.New("LLM_TEMPERATURE must be in [0,2]")
	}
	if cfg.LLM.MaxTokens < 1 {
		return cfg, errors.New("LLM_MAX_TOKENS must be >= 1")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
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
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
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
