package usecase

import (
	"context"
	"errors"
)

// classifyEngineError maps a background-task failure onto the job-error
// taxonomy's job-error-frame codes (the four sentinel errors that never
// surface as HTTP-level errors, only as a terminal Job error event).
func classifyEngineError(err error) (code, message string) {
	switch {
	case errors.Is(err, ErrEngineTimeout), errors.Is(err, context.DeadlineExceeded):
		return "ENGINE_TIMEOUT", "the analysis engine did not complete within the allotted time"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE", err.Error()
	case errors.Is(err, ErrSeasonResolutionUnknown):
		return "SEASON_RESOLUTION_UNKNOWN", err.Error()
	default:
		return "ENGINE_EXCEPTION", err.Error()
	}
}
