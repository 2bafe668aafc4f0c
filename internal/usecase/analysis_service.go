package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/platform/logging"
	"github.com/fplsage/sage-api/internal/platform/rediscache"
)

// OutcomeKind tags which of the two non-error Start outcomes occurred.
type OutcomeKind string

const (
	OutcomeCachedHit OutcomeKind = "cached_hit"
	OutcomeAccepted  OutcomeKind = "accepted"
)

// Outcome is AnalysisService.Start's return value: exactly one of a cache
// hit or an accepted job. Rejections are returned as an error instead
// (ErrValidation, also wrapping the domain's validation sentinel, or a
// *UsageLimitError), matching this package's sentinel-error convention
// used everywhere else.
type Outcome struct {
	Kind   OutcomeKind
	Result *analysis.Result // set when Kind == OutcomeCachedHit
	JobID  string           // set when Kind == OutcomeAccepted
}

// UsageDetail accompanies ErrUsageLimitReached so HTTPSurface can render
// the 403 body's {used, limit, reset_time} detail.
type UsageDetail struct {
	Used      int
	Limit     int
	ResetTime time.Time
}

// UsageLimitError wraps ErrUsageLimitReached with the detail the HTTP
// edge needs, while still satisfying errors.Is(err, ErrUsageLimitReached).
type UsageLimitError struct {
	Detail UsageDetail
}

func (e *UsageLimitError) Error() string { return ErrUsageLimitReached.Error() }
func (e *UsageLimitError) Unwrap() error { return ErrUsageLimitReached }

// AnalysisService is the AnalysisService component: the orchestrator
// tying usage quota, cache, job tracking, and the external engine
// together behind a single Start entry point.
type AnalysisService struct {
	usage       *UsageTracker
	cache       *rediscache.Store
	jobs        JobStore
	engine      Engine
	transformer *ResultTransformer
	pool        *ants.Pool
	logger      *logging.Logger
	clock       func() time.Time
	engineTimeout time.Duration
}

// JobStore is the subset of jobstore.Store's API AnalysisService depends
// on, kept as an interface so the orchestrator can be unit tested
// without a concrete job registry.
type JobStore interface {
	Create(teamID, gameweek int, overrides analysis.Overrides) (analysis.Job, error)
	Get(id string) (analysis.Job, bool)
	Update(id string, mutator func(job *analysis.Job))
	Transition(id string, to analysis.JobStatus, apply func(job *analysis.Job))
	Publish(id string, event analysis.Event)
}

type AnalysisServiceConfig struct {
	WorkerPoolSize int
	EngineTimeout  time.Duration
}

func NewAnalysisService(usage *UsageTracker, cache *rediscache.Store, jobs JobStore, engine Engine, transformer *ResultTransformer, logger *logging.Logger, cfg AnalysisServiceConfig) (*AnalysisService, error) {
	if logger == nil {
		logger = logging.Default()
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 16
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create analysis worker pool: %w", err)
	}

	return &AnalysisService{
		usage:         usage,
		cache:         cache,
		jobs:          jobs,
		engine:        engine,
		transformer:   transformer,
		pool:          pool,
		logger:        logger,
		clock:         time.Now,
		engineTimeout: cfg.EngineTimeout,
	}, nil
}

func (s *AnalysisService) Release() {
	s.pool.Release()
}

// Start implements the five-step acceptance algorithm: validate,
// enforce usage quota, consult the cache, then either return a cached
// hit synchronously or create a job and schedule the background run.
func (s *AnalysisService) Start(ctx context.Context, req analysis.AnalysisRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	allowed, used, limit, resetAt, err := s.usage.CheckLimit(ctx, req.TeamID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !allowed {
		return Outcome{}, &UsageLimitError{Detail: UsageDetail{Used: used, Limit: limit, ResetTime: resetAt}}
	}

	hasOverrides := !req.Overrides.IsZero()
	cacheKey := s.cacheKey(req.TeamID, req.Gameweek)
	if !hasOverrides {
		if raw, hit := s.cache.Get(ctx, cacheKey); hit {
			result, decodeErr := decodeResult(raw)
			if decodeErr == nil {
				return Outcome{Kind: OutcomeCachedHit, Result: &result}, nil
			}
			s.logger.Warn("discarding undecodable cache entry", "key", cacheKey, "error", decodeErr)
		}
	}

	job, err := s.jobs.Create(req.TeamID, req.Gameweek, req.Overrides)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.pool.Submit(func() { s.run(job.ID, req) }); err != nil {
		return Outcome{}, fmt.Errorf("schedule analysis job: %w", err)
	}

	return Outcome{Kind: OutcomeAccepted, JobID: job.ID}, nil
}

// cacheKey renders the canonical cache key; gameweek 0 stands for
// "current gameweek" both here and in the key literal the external
// interface contract documents ("fpl_sage:analysis:{team_id}:current").
func (s *AnalysisService) cacheKey(teamID, gameweek int) string {
	return rediscache.Key(teamID, gameweek)
}

// run is the background task AnalysisService.Start schedules for every
// accepted job. It owns the job's entire lifecycle from queued through
// whichever terminal state it reaches.
func (s *AnalysisService) run(jobID string, req analysis.AnalysisRequest) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if s.engineTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.engineTimeout)
		defer cancel()
	}

	s.jobs.Transition(jobID, analysis.JobRunning, func(job *analysis.Job) {
		job.StartedAt = s.clock()
		job.Phase = "running"
	})

	progress := func(p float64, phase string) {
		s.jobs.Update(jobID, func(job *analysis.Job) {
			if p > job.Progress {
				job.Progress = p
			}
			job.Phase = phase
		})
		s.jobs.Publish(jobID, analysis.Event{Type: analysis.EventProgress, Progress: p, Phase: phase})
	}

	out, err := s.engine.Run(ctx, req.TeamID, req.Gameweek, req.Overrides, progress)
	if err != nil {
		s.fail(jobID, err)
		return
	}

	now := s.clock()
	out.AnalysisID = jobID
	if out.TeamID == 0 {
		out.TeamID = req.TeamID
	}
	result := s.transformer.Transform(out, jobID, now.UTC().Format(time.RFC3339))

	s.jobs.Transition(jobID, analysis.JobCompleted, func(job *analysis.Job) {
		job.Progress = 1
		job.Phase = "completed"
		job.Result = &result
		job.FinishedAt = now
	})
	s.jobs.Publish(jobID, analysis.Event{Type: analysis.EventComplete, Result: &result})

	if err := s.usage.RecordAnalysis(ctx, req.TeamID, result.CurrentGW); err != nil {
		s.logger.Warn("failed to record analysis usage", "job_id", jobID, "error", err)
	}

	if !req.Overrides.IsZero() {
		return
	}
	encoded, encodeErr := encodeResult(result)
	if encodeErr != nil {
		s.logger.Warn("failed to encode result for cache", "job_id", jobID, "error", encodeErr)
		return
	}
	cacheKey := s.cacheKey(req.TeamID, req.Gameweek)
	if err := s.cache.Put(ctx, cacheKey, encoded, 0); err != nil {
		s.logger.Warn("failed to write analysis cache entry", "job_id", jobID, "error", err)
	}
}

func (s *AnalysisService) fail(jobID string, err error) {
	code, message := classifyEngineError(err)
	now := s.clock()
	s.jobs.Transition(jobID, analysis.JobFailed, func(job *analysis.Job) {
		job.Phase = "failed"
		job.Error = &analysis.JobError{Code: code, Message: message}
		job.FinishedAt = now
	})
	s.jobs.Publish(jobID, analysis.Event{Type: analysis.EventError, Code: code, Message: message})
}
