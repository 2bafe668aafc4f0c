package httpapi

import (
	"net/http"

	"github.com/fplsage/sage-api/internal/platform/logging"
	"github.com/fplsage/sage-api/internal/platform/ratelimit"
)

// NewRouter wires every route under /api/v1 behind the middleware order
// the external interface contract specifies: CORS -> rate limit -> route
// -> error handler.
func NewRouter(
	handler *Handler,
	limiter *ratelimit.Limiter,
	logger *logging.Logger,
	corsAllowedOrigins []string,
	swaggerEnabled bool,
) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze", handler.PostAnalyze)
	mux.HandleFunc("GET /api/v1/analyze/{id}", handler.GetAnalyze)
	mux.HandleFunc("GET /api/v1/analyze/{id}/stream", handler.streamer.ServeStream)
	mux.HandleFunc("GET /api/v1/usage/{team_id}", handler.GetUsage)
	mux.HandleFunc("GET /api/v1/health", handler.GetHealth)

	if swaggerEnabled {
		mux.HandleFunc("GET /swagger/openapi.json", handler.OpenAPI)
		mux.HandleFunc("GET /swagger/", handler.SwaggerUI)
	}

	stack := CORS(corsAllowedOrigins, RateLimit(limiter, recoverPanic(logger, mux)))
	return RequestTracing(RequestLogging(logger, stack))
}
