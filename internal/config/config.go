// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, queueing, worker retry policy, classifier access, alert
// thresholds and observability settings.
package config

import (
	"errors"
	"fmt"
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

// DBConfig selects and addresses the record store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH, sqlite only
	DSN    string // DB_DSN, postgres only
}

// RedisConfig addresses the optional Redis used for the queue and fan-out.
// An empty Addr keeps both in process.
type RedisConfig struct {
	Addr     string
	Channel  string // Pub/Sub channel for pipeline events
	QueueKey string // list key when QUEUE_BACKEND=redis
}

// WorkerConfig controls the classification pool and the reconciler.
type WorkerConfig struct {
	Concurrency   int
	Timeout       time.Duration // per classifier call
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
	RetryJitter   float64
	LeaseTimeout  time.Duration
	SweepInterval time.Duration
	PendingGrace  time.Duration
}

// ClassifierConfig selects the classification backend.
type ClassifierConfig struct {
	Mode   string  // http|llm
	URL    string  // CLASSIFIER_URL
	APIKey string  // CLASSIFIER_API_KEY
	RPS    float64 // calls per second across all workers; 0 disables pacing

	LLMProvider     string
	LLMModel        string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
}

// AlertConfig holds the sentiment spike rule parameters.
type AlertConfig struct {
	SpikeWindow       time.Duration
	SpikeBaseline     int
	SpikeThresholdPct float64
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

	DB DBConfig

	// Ingestion
	WebhookMaxBody    int64  // bytes accepted per webhook/manual body
	QuotaMonthlyLimit int64  // records per tenant per month; 0 = unlimited
	IntegrationsFile  string // optional YAML seed for integration secrets

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Queue
	QueueBackend  string // memory|redis
	QueueCapacity int

	Worker     WorkerConfig
	Classifier ClassifierConfig
	Alerts     AlertConfig
	Redis      RedisConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "feedback.db"),
			DSN:    getenv("DB_DSN", ""),
		},

		// Ingestion
		WebhookMaxBody:    int64(getint("WEBHOOK_MAX_BODY", 1<<20)),
		QuotaMonthlyLimit: int64(getint("QUOTA_MONTHLY_LIMIT", 0)),
		IntegrationsFile:  getenv("INTEGRATIONS_FILE", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Queue
		QueueBackend:  strings.ToLower(getenv("QUEUE_BACKEND", "memory")),
		QueueCapacity: getint("QUEUE_CAPACITY", 1024),

		Worker: WorkerConfig{
			Concurrency:   getint("WORKER_CONCURRENCY", 4),
			Timeout:       getdur("CLASSIFY_TIMEOUT", 20*time.Second),
			MaxAttempts:   getint("CLASSIFY_MAX_ATTEMPTS", 5),
			RetryBase:     getdur("RETRY_BASE_DELAY", 2*time.Second),
			RetryMax:      getdur("RETRY_MAX_DELAY", 2*time.Minute),
			RetryJitter:   getfloat("RETRY_JITTER", 0.2),
			LeaseTimeout:  getdur("LEASE_TIMEOUT", 5*time.Minute),
			SweepInterval: getdur("SWEEP_INTERVAL", 30*time.Second),
			PendingGrace:  getdur("PENDING_GRACE", 2*time.Minute),
		},

		Classifier: ClassifierConfig{
			Mode:            strings.ToLower(getenv("CLASSIFIER_MODE", "http")),
			URL:             getenv("CLASSIFIER_URL", "http://localhost:9000"),
			APIKey:          getenv("CLASSIFIER_API_KEY", ""),
			RPS:             getfloat("CLASSIFIER_RPS", 5),
			LLMProvider:     strings.ToLower(getenv("LLM_PROVIDER", "openai")),
			LLMModel:        getenv("LLM_MODEL", "gpt-4o-mini"),
			OpenAIAPIKey:    getenv("OPENAI_API_KEY", ""),
			AnthropicAPIKey: getenv("ANTHROPIC_API_KEY", ""),
			OllamaHost:      getenv("OLLAMA_HOST", ""),
		},

		Alerts: AlertConfig{
			SpikeWindow:       getdur("SPIKE_WINDOW", time.Hour),
			SpikeBaseline:     getint("SPIKE_BASELINE", 5),
			SpikeThresholdPct: getfloat("SPIKE_THRESHOLD_PCT", 50),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Channel:  getenv("REDIS_CHANNEL", "feedback:events"),
			QueueKey: getenv("REDIS_QUEUE_KEY", "feedback:queue"),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "feedbackd"),
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
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
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
	if err := cfg.validateStorage(); err != nil {
		return cfg, err
	}
	if cfg.WebhookMaxBody <= 0 {
		return cfg, errors.New("WEBHOOK_MAX_BODY must be > 0")
	}
	if cfg.QuotaMonthlyLimit < 0 {
		return cfg, errors.New("QUOTA_MONTHLY_LIMIT must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if err := cfg.validateWorker(); err != nil {
		return cfg, err
	}
	if err := cfg.validateClassifier(); err != nil {
		return cfg, err
	}
	if cfg.Alerts.SpikeWindow <= 0 || cfg.Alerts.SpikeBaseline < 0 || cfg.Alerts.SpikeThresholdPct < 0 {
		return cfg, errors.New("SPIKE_WINDOW must be > 0 and SPIKE_BASELINE, SPIKE_THRESHOLD_PCT >= 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func (cfg Config) validateStorage() error {
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DB.Driver)
	}

	switch cfg.QueueBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("REDIS_ADDR is required when QUEUE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("QUEUE_BACKEND must be memory or redis, got %q", cfg.QueueBackend)
	}
	if cfg.QueueCapacity < 1 {
		return errors.New("QUEUE_CAPACITY must be >= 1")
	}
	return nil
}

func (cfg Config) validateWorker() error {
	w := cfg.Worker
	if w.Concurrency < 1 {
		return errors.New("WORKER_CONCURRENCY must be >= 1")
	}
	if w.MaxAttempts < 1 {
		return errors.New("CLASSIFY_MAX_ATTEMPTS must be >= 1")
	}
	if w.Timeout <= 0 || w.LeaseTimeout <= 0 || w.SweepInterval <= 0 || w.PendingGrace <= 0 {
		return errors.New("worker durations must be positive")
	}
	if w.LeaseTimeout <= w.Timeout {
		return errors.New("LEASE_TIMEOUT must exceed CLASSIFY_TIMEOUT")
	}
	if w.RetryBase <= 0 || w.RetryMax < w.RetryBase {
		return errors.New("RETRY_BASE_DELAY must be > 0 and <= RETRY_MAX_DELAY")
	}
	if w.RetryJitter < 0 || w.RetryJitter >= 1 {
		return errors.New("RETRY_JITTER must be in [0,1)")
	}
	return nil
}

func (cfg Config) validateClassifier() error {
	c := cfg.Classifier
	if c.RPS < 0 {
		return errors.New("CLASSIFIER_RPS must be >= 0")
	}
	switch c.Mode {
	case "http":
		if strings.TrimSpace(c.URL) == "" {
			return errors.New("CLASSIFIER_URL must not be empty")
		}
	case "llm":
		switch c.LLMProvider {
		case "openai", "anthropic", "ollama":
		default:
			return fmt.Errorf("LLM_PROVIDER must be openai, anthropic or ollama, got %q", c.LLMProvider)
		}
		if strings.TrimSpace(c.LLMModel) == "" {
			return errors.New("LLM_MODEL must not be empty")
		}
	default:
		return fmt.Errorf("CLASSIFIER_MODE must be http or llm, got %q", c.Mode)
	}
	return nil
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
