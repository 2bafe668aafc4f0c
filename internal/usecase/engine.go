package usecase

import (
	"context"

	"github.com/fplsage/sage-api/internal/domain/analysis"
)

// Engine is the external analysis engine. AnalysisService treats it as an
// opaque dependency: given a validated request it returns a normalized
// EngineOutput or an error that classifyEngineError maps by sentinel
// (ErrEngineTimeout or context.DeadlineExceeded, ErrUpstreamUnavailable,
// ErrSeasonResolutionUnknown; anything else is ENGINE_EXCEPTION). This
// package defines only the interface; the reference implementation good
// enough to exercise the rest of the pipeline end to end is
// fpl.DemoEngine in external/fpl.
type Engine interface {
	Run(ctx context.Context, teamID, gameweek int, overrides analysis.Overrides, progress ProgressFunc) (analysis.EngineOutput, error)
}

// ProgressFunc lets an Engine implementation report incremental progress
// without holding a reference to the job or JobStore; AnalysisService
// supplies the closure and owns what happens with each report.
type ProgressFunc func(progress float64, phase string)
