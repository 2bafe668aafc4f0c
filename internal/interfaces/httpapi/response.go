package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/platform/logging"
	"github.com/fplsage/sage-api/internal/usecase"
)

// errorBody is the wire-contract error envelope every non-2xx response
// shares: {error, code, detail?}. Terminal WS error frames use
// analysis.Event instead.
type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail any    `json:"detail,omitempty"`
}

type mappedError struct {
	HTTPStatus int
	Code       string
	Message    string
	Detail     any
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	_, span := startSpan(ctx, "httpapi.writeJSON")
	defer span.End()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data any) {
	_, span := startSpan(ctx, "httpapi.writeSuccess")
	defer span.End()

	writeJSON(ctx, w, status, data)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	mapped := mapError(err)

	logging.Default().ErrorContext(ctx, "api error response",
		"event", "api_error",
		"error_code", mapped.Code,
		"http_status", mapped.HTTPStatus,
		"internal_message", err.Error(),
	)

	span.RecordError(err)
	span.SetStatus(codes.Error, mapped.Code)
	span.SetAttributes(
		attribute.Int("error.http_status", mapped.HTTPStatus),
		attribute.String("error.code", mapped.Code),
	)

	writeJSON(ctx, w, mapped.HTTPStatus, errorBody{
		Error:  mapped.Message,
		Code:   mapped.Code,
		Detail: mapped.Detail,
	})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter) {
	_, span := startSpan(ctx, "httpapi.writeInternalError")
	defer span.End()

	writeJSON(ctx, w, http.StatusInternalServerError, errorBody{
		Error: "internal server error",
		Code:  "INTERNAL_ERROR",
	})
}

// mapError implements the error taxonomy table: every sentinel error this
// service's usecase/domain layers produce maps to exactly one HTTP status
// and wire error code.
func mapError(err error) mappedError {
	var usageErr *usecase.UsageLimitError

	switch {
	case errors.Is(err, analysis.ErrInvalidTeamID):
		return mappedError{HTTPStatus: http.StatusBadRequest, Code: "INVALID_TEAM_ID", Message: err.Error()}
	case errors.Is(err, analysis.ErrInvalidGameweek):
		return mappedError{HTTPStatus: http.StatusBadRequest, Code: "INVALID_GAMEWEEK", Message: err.Error()}
	case errors.Is(err, usecase.ErrValidation), errors.Is(err, analysis.ErrInvalidOverride), errors.Is(err, analysis.ErrInvalidRisk):
		return mappedError{HTTPStatus: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: err.Error()}
	case errors.Is(err, usecase.ErrRateLimited):
		return mappedError{HTTPStatus: http.StatusTooManyRequests, Code: "RATE_LIMITED", Message: "too many requests"}
	case errors.As(err, &usageErr):
		return mappedError{
			HTTPStatus: http.StatusForbidden,
			Code:       "USAGE_LIMIT_REACHED",
			Message:    "analysis usage limit reached for this gameweek",
			Detail: map[string]any{
				"used":       usageErr.Detail.Used,
				"limit":      usageErr.Detail.Limit,
				"reset_time": usageErr.Detail.ResetTime,
			},
		}
	case errors.Is(err, usecase.ErrUsageLimitReached):
		return mappedError{HTTPStatus: http.StatusForbidden, Code: "USAGE_LIMIT_REACHED", Message: "analysis usage limit reached for this gameweek"}
	case errors.Is(err, usecase.ErrAnalysisNotFound):
		return mappedError{HTTPStatus: http.StatusNotFound, Code: "ANALYSIS_NOT_FOUND", Message: "analysis not found"}
	default:
		return mappedError{HTTPStatus: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "internal server error"}
	}
}
