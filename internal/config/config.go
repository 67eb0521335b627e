package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	DBAutoMigrate      bool
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	Obs ObsConfig
	KPI KPIConfig

	OrderDefaultPageSize int
	OrderMaxPageSize     int
	IdempotencyTTL       time.Duration
	AnalyticsCacheTTL    time.Duration
	AnalyticsRangeDays   int
	RateLimitMutations   string
	BodyLimitBytes       int64
	LockRetryBackoff     time.Duration
	ShutdownTimeout      time.Duration
	WorkerConcurrency    int

	PprofEnabled  bool
	PprofUser     string
	PprofPassword string
}

// ObsConfig groups logging, metrics and tracing settings.
type ObsConfig struct {
	LogFormat         string
	LogLevel          string
	LogFile           string
	LogMaxSizeMB      int
	LogMaxBackups     int
	LogMaxAgeDays     int
	MetricsNamespace  string
	MetricsBuckets    string
	EnablePrometheus  bool
	EnableTracing     bool
	OTLPEndpoint      string
	TracingExporter   string
	TracingSampleRate float64
	ServiceName       string
}

// KPIConfig tunes the commission calculator and its schedule.
type KPIConfig struct {
	BaseCommissionPercent int
	MinYear               int
	MaxYear               int
	Concurrency           int
	LockTTL               time.Duration
	DashboardCacheTTL     time.Duration
	ScheduleCron          string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Obs: ObsConfig{
			LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			LogFile:           strings.TrimSpace(k.String("OBS_LOG_FILE")),
			LogMaxSizeMB:      parseInt(k.String("OBS_LOG_MAX_SIZE_MB"), 100),
			LogMaxBackups:     parseInt(k.String("OBS_LOG_MAX_BACKUPS"), 5),
			LogMaxAgeDays:     parseInt(k.String("OBS_LOG_MAX_AGE_DAYS"), 28),
			MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_sales"),
			MetricsBuckets:    k.String("OBS_METRICS_BUCKETS_MS"),
			EnablePrometheus:  parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:     parseBool(k.String("OBS_ENABLE_TRACING")),
			OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			TracingExporter:   valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			TracingSampleRate: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			ServiceName:       valueOrDefault(k.String("OBS_SERVICE_NAME"), "toko-sales"),
		},
		KPI: KPIConfig{
			BaseCommissionPercent: parseInt(k.String("KPI_BASE_COMMISSION_PERCENT"), 10),
			MinYear:               parseInt(k.String("KPI_MIN_YEAR"), 2000),
			MaxYear:               parseInt(k.String("KPI_MAX_YEAR"), 2100),
			Concurrency:           parseInt(k.String("KPI_CONCURRENCY"), 4),
			LockTTL:               parseDuration(k.String("KPI_LOCK_TTL"), "30s"),
			DashboardCacheTTL:     parseDuration(k.String("KPI_DASHBOARD_CACHE_TTL"), "60s"),
			ScheduleCron:          valueOrDefault(k.String("KPI_SCHEDULE_CRON"), "0 1 1 * *"),
		},
		OrderDefaultPageSize: parseInt(k.String("ORDER_DEFAULT_PAGE_SIZE"), 10),
		OrderMaxPageSize:     parseInt(k.String("ORDER_MAX_PAGE_SIZE"), 100),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		AnalyticsCacheTTL:    parseDuration(k.String("ANALYTICS_CACHE_TTL"), "60s"),
		AnalyticsRangeDays:   parseInt(k.String("ANALYTICS_DEFAULT_RANGE_DAYS"), 30),
		RateLimitMutations:   valueOrDefault(k.String("RATE_LIMIT_MUTATIONS"), "120-M"),
		BodyLimitBytes:       int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		LockRetryBackoff:     parseDuration(k.String("LOCK_RETRY_BACKOFF"), "100ms"),
		ShutdownTimeout:      parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		WorkerConcurrency:    parseInt(k.String("WORKER_CONCURRENCY"), 10),
		PprofEnabled:         parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPassword:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.KPI.MinYear > cfg.KPI.MaxYear {
		return nil, fmt.Errorf("KPI_MIN_YEAR %d is after KPI_MAX_YEAR %d", cfg.KPI.MinYear, cfg.KPI.MaxYear)
	}
	if cfg.OrderDefaultPageSize > cfg.OrderMaxPageSize {
		cfg.OrderDefaultPageSize = cfg.OrderMaxPageSize
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 || f > 1 {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests applies env overrides, loads, and restores the previous values.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
