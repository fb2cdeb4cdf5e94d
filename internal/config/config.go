// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the settings shared by
// the API server and both chat bots: server timeouts, logging, the store and its
// change feed, the AI responder, bot transport, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported DB_DRIVER values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "support-desk")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and addresses the backing store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// FeedConfig tunes the change feed and the dispatcher that consumes it.
type FeedConfig struct {
	Channel        string        // NOTIFY channel name
	Reconnect      time.Duration // delay between LISTEN reconnect attempts
	Buffer         int           // in-process broker buffer per subscriber
	DedupeTTL      time.Duration // how long a delivered change key is remembered
	HandlerTimeout time.Duration // bound on a single listener invocation
}

// AIConfig configures the automatic responder.
type AIConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Threshold      float64 // minimum cosine similarity for FAQ grounding
	TopK           int
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	SystemPrompt   string
}

// BotConfig configures the Telegram bots.
type BotConfig struct {
	UserToken       string
	AdminToken      string
	APIBaseURL      string        // where the bots reach the HTTP API
	OutboundTimeout time.Duration // per API call and per notification delivery
	SendRPS         float64       // outbound Telegram messages per second
	MetricsAddr     string        // optional listen address for bot /metrics
	Debug           bool
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

	DB   DBConfig
	Feed FeedConfig
	AI   AIConfig
	Bot  BotConfig

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

// DefaultSystemPrompt is the fixed instruction given to the completion model.
const DefaultSystemPrompt = "You are a helpful customer support assistant. Be concise and friendly in your responses."

// LoadDotEnv loads variables from the given .env files (or ./.env) into the
// process environment. Missing files are not an error; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
			Path:   getenv("DB_PATH", "support.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Feed: FeedConfig{
			Channel:        getenv("FEED_CHANNEL", "support_changes"),
			Reconnect:      getdur("FEED_RECONNECT", 2*time.Second),
			Buffer:         getint("FEED_BUFFER", 256),
			DedupeTTL:      getdur("DISPATCH_DEDUPE_TTL", 10*time.Minute),
			HandlerTimeout: getdur("DISPATCH_HANDLER_TIMEOUT", 30*time.Second),
		},
		AI: AIConfig{
			APIKey:         getenv("GEMINI_API_KEY", ""),
			ChatModel:      getenv("CHAT_MODEL", "gemini-1.5-flash"),
			EmbeddingModel: getenv("EMBEDDING_MODEL", "text-embedding-004"),
			Threshold:      getfloat("FAQ_SIMILARITY_THRESHOLD", 0.7),
			TopK:           getint("FAQ_TOP_K", 5),
			MaxTokens:      getint("AI_MAX_TOKENS", 500),
			Temperature:    getfloat("AI_TEMPERATURE", 0.7),
			Timeout:        getdur("AI_TIMEOUT", 30*time.Second),
			SystemPrompt:   getenv("AI_SYSTEM_PROMPT", DefaultSystemPrompt),
		},
		Bot: BotConfig{
			UserToken:       getenv("USER_BOT_TOKEN", ""),
			AdminToken:      getenv("ADMIN_BOT_TOKEN", ""),
			APIBaseURL:      strings.TrimRight(getenv("API_BASE_URL", "http://localhost:8080/api"), "/"),
			OutboundTimeout: getdur("OUTBOUND_TIMEOUT", 10*time.Second),
			SendRPS:         getfloat("BOT_SEND_RPS", 25),
			MetricsAddr:     getenv("BOT_METRICS_ADDR", ""),
			Debug:           getbool("BOT_DEBUG", false),
		},

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "support-desk"),
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
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = DriverPostgres
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
	switch cfg.DB.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.Feed.Channel) == "" {
		return cfg, errors.New("FEED_CHANNEL must not be empty")
	}
	if cfg.Feed.Buffer < 1 {
		return cfg, errors.New("FEED_BUFFER must be >= 1")
	}
	if cfg.Feed.Reconnect <= 0 || cfg.Feed.DedupeTTL <= 0 || cfg.Feed.HandlerTimeout <= 0 {
		return cfg, errors.New("feed durations must be positive")
	}
	if cfg.AI.Threshold <= 0 || cfg.AI.Threshold > 1 {
		return cfg, errors.New("FAQ_SIMILARITY_THRESHOLD must be in (0,1]")
	}
	if cfg.AI.TopK < 1 {
		return cfg, errors.New("FAQ_TOP_K must be >= 1")
	}
	if cfg.AI.MaxTokens <= 0 {
		return cfg, errors.New("AI_MAX_TOKENS must be > 0")
	}
	if cfg.AI.Temperature <= 0 || cfg.AI.Temperature > 2 {
		return cfg, errors.New("AI_TEMPERATURE must be in (0,2]")
	}
	if cfg.AI.Timeout <= 0 || cfg.Bot.OutboundTimeout <= 0 {
		return cfg, errors.New("AI_TIMEOUT and OUTBOUND_TIMEOUT must be positive")
	}
	if cfg.Bot.SendRPS <= 0 {
		return cfg, errors.New("BOT_SEND_RPS must be > 0")
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

// RequireAI reports whether the responder can be built from this config.
func (c Config) RequireAI() error {
	if strings.TrimSpace(c.AI.APIKey) == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

// RequireBotToken returns the token for the named bot ("user" or "admin").
func (c Config) RequireBotToken(kind string) (string, error) {
	var tok string
	switch kind {
	case "user":
		tok = c.Bot.UserToken
	case "admin":
		tok = c.Bot.AdminToken
	default:
		return "", errors.New("unknown bot kind " + strconv.Quote(kind))
	}
	if strings.TrimSpace(tok) == "" {
		return "", errors.New(strings.ToUpper(kind) + "_BOT_TOKEN is required")
	}
	return tok, nil
}

// ---- helpers ----

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
