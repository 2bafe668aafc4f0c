package httpapi

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/platform/logging"
	"github.com/fplsage/sage-api/internal/usecase"
)

// Handler groups every HTTPSurface route's dependencies behind one
// struct, constructed once at startup and shared across requests.
type Handler struct {
	analysisService *usecase.AnalysisService
	usageTracker    *usecase.UsageTracker
	jobs            JobReader
	streamer        *Streamer
	logger          *logging.Logger
	validator       *validator.Validate
}

// JobReader is the subset of jobstore.Store's API the HTTP handlers
// need for GET /analyze/{id} and the progress stream.
type JobReader interface {
	Get(id string) (analysis.Job, bool)
	Subscribe(id string) (analysis.JobSubscription, bool)
}

func NewHandler(
	analysisService *usecase.AnalysisService,
	usageTracker *usecase.UsageTracker,
	jobs JobReader,
	streamer *Streamer,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		analysisService: analysisService,
		usageTracker:    usageTracker,
		jobs:            jobs,
		streamer:        streamer,
		logger:          logger,
		validator:       validator.New(),
	}
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrValidation, err)
	}
	return nil
}
