package usecase

import "errors"

// Sentinel errors mirroring the error taxonomy, wrapped with
// fmt.Errorf("%w: ...") by the component that detects them. The
// request-time ones (ErrValidation, ErrRateLimited, ErrUsageLimitReached,
// ErrAnalysisNotFound) are mapped to an HTTP status/code at the
// HTTPSurface edge via mapError; the job-time ones are mapped to job
// error codes by classifyEngineError.
var (
	ErrValidation             = errors.New("validation error")
	ErrRateLimited            = errors.New("rate limited")
	ErrUsageLimitReached      = errors.New("usage limit reached")
	ErrAnalysisNotFound       = errors.New("analysis not found")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrSeasonResolutionUnknown = errors.New("season resolution unknown")
	ErrEngineException        = errors.New("engine exception")
	ErrEngineTimeout          = errors.New("engine timeout")
)
