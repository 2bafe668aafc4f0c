package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       zapcore.Level

	CORSAllowedOrigins []string

	RedisURL string

	RateLimitRequests      int
	RateLimitWindowSeconds int

	CacheTTLSeconds int

	UsageLimitPerGW int

	FPLBaseURL                 string
	UpstreamTimeoutSeconds     int
	FPLCircuitEnabled          bool
	FPLCircuitFailureCount     int
	FPLCircuitOpenTimeout      time.Duration
	FPLCircuitHalfOpenMaxReq   int

	AnalysisWorkerPoolSize int
	EngineTimeoutSeconds   int
	JobRetentionSeconds    int

	SwaggerEnabled bool
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}

	rateLimitRequests, err := getEnvAsInt("RATE_LIMIT_REQUESTS", 100)
	if err != nil {
		return Config{}, fmt.Errorf("parse RATE_LIMIT_REQUESTS: %w", err)
	}
	rateLimitWindowSeconds, err := getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 3600)
	if err != nil {
		return Config{}, fmt.Errorf("parse RATE_LIMIT_WINDOW_SECONDS: %w", err)
	}

	cacheTTLSeconds, err := getEnvAsInt("CACHE_TTL_SECONDS", 300)
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}

	usageLimitPerGW, err := getEnvAsInt("USAGE_LIMIT_PER_GW", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse USAGE_LIMIT_PER_GW: %w", err)
	}

	upstreamTimeoutSeconds, err := getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 10)
	if err != nil {
		return Config{}, fmt.Errorf("parse UPSTREAM_TIMEOUT_SECONDS: %w", err)
	}

	fplCircuitEnabled, err := strconv.ParseBool(getEnv("FPL_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_ENABLED: %w", err)
	}
	fplCircuitFailureCount, err := getEnvAsInt("FPL_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if fplCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("FPL_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	fplCircuitOpenTimeout, err := time.ParseDuration(getEnv("FPL_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if fplCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("FPL_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	fplCircuitHalfOpenMaxReq, err := getEnvAsInt("FPL_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if fplCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("FPL_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	analysisWorkerPoolSize, err := getEnvAsInt("ANALYSIS_WORKER_POOL_SIZE", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse ANALYSIS_WORKER_POOL_SIZE: %w", err)
	}
	if analysisWorkerPoolSize <= 0 {
		analysisWorkerPoolSize = runtime.NumCPU() * 4
	}

	engineTimeoutSeconds, err := getEnvAsInt("ENGINE_TIMEOUT_SECONDS", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse ENGINE_TIMEOUT_SECONDS: %w", err)
	}

	jobRetentionSeconds, err := getEnvAsInt("JOB_RETENTION_SECONDS", 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse JOB_RETENTION_SECONDS: %w", err)
	}

	swaggerDefault := appEnv == EnvDev
	swaggerEnabled, err := strconv.ParseBool(getEnv("SWAGGER_ENABLED", strconv.FormatBool(swaggerDefault)))
	if err != nil {
		return Config{}, fmt.Errorf("parse SWAGGER_ENABLED: %w", err)
	}

	return Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("APP_SERVICE_NAME", "fpl-sage-api"),
		ServiceVersion: getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:       getEnv("APP_HTTP_ADDR", ":8080"),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		LogLevel:       parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		RedisURL: getEnv("REDIS_URL", ""),

		RateLimitRequests:      rateLimitRequests,
		RateLimitWindowSeconds: rateLimitWindowSeconds,

		CacheTTLSeconds: cacheTTLSeconds,

		UsageLimitPerGW: usageLimitPerGW,

		FPLBaseURL:               getEnv("FPL_BASE_URL", "https://fantasy.premierleague.com/api"),
		UpstreamTimeoutSeconds:   upstreamTimeoutSeconds,
		FPLCircuitEnabled:        fplCircuitEnabled,
		FPLCircuitFailureCount:   fplCircuitFailureCount,
		FPLCircuitOpenTimeout:    fplCircuitOpenTimeout,
		FPLCircuitHalfOpenMaxReq: fplCircuitHalfOpenMaxReq,

		AnalysisWorkerPoolSize: analysisWorkerPoolSize,
		EngineTimeoutSeconds:   engineTimeoutSeconds,
		JobRetentionSeconds:    jobRetentionSeconds,

		SwaggerEnabled: swaggerEnabled,
	}, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(v string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return out, nil
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
