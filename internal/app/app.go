package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fplsage/sage-api/external/fpl"
	"github.com/fplsage/sage-api/internal/config"
	"github.com/fplsage/sage-api/internal/interfaces/httpapi"
	"github.com/fplsage/sage-api/internal/jobstore"
	"github.com/fplsage/sage-api/internal/platform/idgen"
	"github.com/fplsage/sage-api/internal/platform/logging"
	"github.com/fplsage/sage-api/internal/platform/ratelimit"
	"github.com/fplsage/sage-api/internal/platform/redisx"
	"github.com/fplsage/sage-api/internal/platform/rediscache"
	"github.com/fplsage/sage-api/internal/platform/resilience"
	"github.com/fplsage/sage-api/internal/usecase"
)

// App bundles the wired HTTP handler with the background reaper and the
// Redis connection it must close on shutdown.
type App struct {
	Handler  http.Handler
	jobs     *jobstore.Store
	redis    *redisx.Client
	analysis *usecase.AnalysisService
	logger   *logging.Logger
}

// New wires every component the external interface contract requires:
// the Redis-backed platform adapters, the FPL upstream client, the
// analysis pipeline, and the HTTP/WS surface in front of it.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	redisClient, err := redisx.New(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if !redisClient.Enabled() {
		logger.Warn("REDIS_URL not configured, running in degraded mode: cache/rate-limit/usage tracking disabled")
	}

	limiter := ratelimit.New(redisClient, ratelimit.Config{
		Requests:      cfg.RateLimitRequests,
		WindowSeconds: cfg.RateLimitWindowSeconds,
	})
	cacheStore := rediscache.New(redisClient, cfg.CacheTTLSeconds)

	fplClient := fpl.NewClient(fpl.ClientConfig{
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second},
		BaseURL:    cfg.FPLBaseURL,
		Timeout:    time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.FPLCircuitEnabled,
			FailureThreshold: cfg.FPLCircuitFailureCount,
			OpenTimeout:      cfg.FPLCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.FPLCircuitHalfOpenMaxReq,
		},
	})
	engine := fpl.NewDemoEngine(fplClient)

	usageTracker := usecase.NewUsageTracker(redisClient, fplClient, cfg.UsageLimitPerGW)

	jobStore := jobstore.New(idgen.NewJobIDGenerator(), logger, time.Duration(cfg.JobRetentionSeconds)*time.Second)

	transformer := usecase.NewResultTransformer()

	analysisService, err := usecase.NewAnalysisService(
		usageTracker,
		cacheStore,
		jobStore,
		engine,
		transformer,
		logger,
		usecase.AnalysisServiceConfig{
			WorkerPoolSize: cfg.AnalysisWorkerPoolSize,
			EngineTimeout:  time.Duration(cfg.EngineTimeoutSeconds) * time.Second,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build analysis service: %w", err)
	}

	streamer := httpapi.NewStreamer(jobStore, logger, cfg.CORSAllowedOrigins)
	handler := httpapi.NewHandler(analysisService, usageTracker, jobStore, streamer, logger)
	router := httpapi.NewRouter(handler, limiter, logger, cfg.CORSAllowedOrigins, cfg.SwaggerEnabled)

	return &App{
		Handler:  router,
		jobs:     jobStore,
		redis:    redisClient,
		analysis: analysisService,
		logger:   logger,
	}, nil
}

// RunReaper runs the jobstore's terminal-job sweep on the caller's
// goroutine; it returns once ctx is cancelled.
func (a *App) RunReaper(ctx context.Context, interval time.Duration) {
	a.jobs.RunReaper(ctx, interval)
}

// Close releases the analysis worker pool and the Redis connection.
func (a *App) Close() error {
	a.analysis.Release()
	return a.redis.Close()
}
