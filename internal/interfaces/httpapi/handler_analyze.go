package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/platform/ratelimit"
	"github.com/fplsage/sage-api/internal/usecase"
)

// overrideWireKeys lists the JSON keys that, when present at the top
// level of the request body (regardless of value), flag the request as
// carrying an override — even an empty list counts, per the external
// interface contract's cache-bypass rule.
var overrideWireKeys = []string{
	"available_chips",
	"free_transfers",
	"risk_posture",
	"manual_transfers",
	"injury_overrides",
	"thresholds",
}

// analyzeRequestBody is the wire shape of POST /analyze: team_id and
// gameweek alongside the override fields, all flat at the top level (no
// "overrides" wrapper). UnmarshalJSON additionally peeks the raw object
// for which override keys were actually sent, since Go's zero value can't
// tell "absent" from "present but empty".
type analyzeRequestBody struct {
	TeamID          int                       `json:"team_id" validate:"required"`
	Gameweek        int                       `json:"gameweek,omitempty"`
	AvailableChips  []analysis.ChipName       `json:"available_chips,omitempty"`
	FreeTransfers   *int                      `json:"free_transfers,omitempty" validate:"omitempty,min=0,max=5"`
	RiskPosture     analysis.RiskPosture      `json:"risk_posture,omitempty"`
	ManualTransfers []analysis.ManualTransfer `json:"manual_transfers,omitempty" validate:"omitempty,dive"`
	InjuryOverrides []analysis.InjuryOverride `json:"injury_overrides,omitempty" validate:"omitempty,dive"`
	Thresholds      map[string]float64        `json:"thresholds,omitempty"`

	overridesPresent bool
}

func (b *analyzeRequestBody) UnmarshalJSON(data []byte) error {
	type plain analyzeRequestBody
	if err := sonic.Unmarshal(data, (*plain)(b)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range overrideWireKeys {
		if _, ok := raw[key]; ok {
			b.overridesPresent = true
			break
		}
	}
	return nil
}

func (b *analyzeRequestBody) toDomain(clientIP string) analysis.AnalysisRequest {
	req := analysis.AnalysisRequest{
		TeamID:   b.TeamID,
		Gameweek: b.Gameweek,
		ClientIP: clientIP,
		Overrides: analysis.Overrides{
			AvailableChips:  b.AvailableChips,
			FreeTransfers:   b.FreeTransfers,
			RiskPosture:     b.RiskPosture,
			ManualTransfers: b.ManualTransfers,
			InjuryOverrides: b.InjuryOverrides,
			Thresholds:      b.Thresholds,
		},
	}
	if b.overridesPresent {
		req.Overrides.MarkPresent()
	}
	return req
}

// PostAnalyze implements POST /api/v1/analyze (§4.9 of the external
// interface contract): validate, enforce quota, consult cache, accept.
func (h *Handler) PostAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PostAnalyze")
	defer span.End()

	var body analyzeRequestBody
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: malformed request body: %v", usecase.ErrValidation, err))
		return
	}
	if err := h.validateRequest(ctx, body); err != nil {
		writeError(ctx, w, err)
		return
	}

	req := body.toDomain(ratelimit.ClientIP(r))

	outcome, err := h.analysisService.Start(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	switch outcome.Kind {
	case usecase.OutcomeCachedHit:
		writeSuccess(ctx, w, http.StatusOK, map[string]any{
			"analysis_id": outcome.Result.AnalysisID,
			"cached":      true,
			"result":      outcome.Result,
		})
	case usecase.OutcomeAccepted:
		writeSuccess(ctx, w, http.StatusAccepted, map[string]any{
			"analysis_id": outcome.JobID,
			"status":      "queued",
		})
	}
}

// GetAnalyze implements GET /api/v1/analyze/{id}.
func (h *Handler) GetAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetAnalyze")
	defer span.End()

	id := r.PathValue("id")
	job, ok := h.jobs.Get(id)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: %s", usecase.ErrAnalysisNotFound, id))
		return
	}

	payload := map[string]any{
		"status":   job.Status,
		"phase":    job.Phase,
		"progress": job.Progress,
	}
	if job.Result != nil {
		payload["result"] = job.Result
	}
	if job.Error != nil {
		payload["error"] = job.Error
	}
	writeSuccess(ctx, w, http.StatusOK, payload)
}

// GetUsage implements GET /api/v1/usage/{team_id}.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetUsage")
	defer span.End()

	teamID, err := parseTeamID(r.PathValue("team_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	usage, err := h.usageTracker.GetUsage(ctx, teamID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]any{
		"team_id":    usage.TeamID,
		"gameweek":   usage.Gameweek,
		"used":       usage.Used,
		"limit":      usage.Limit,
		"remaining":  usage.Remaining,
		"reset_time": usage.ResetTime,
	})
}

func parseTeamID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	teamID, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: team_id must be an integer", analysis.ErrInvalidTeamID)
	}
	if teamID < analysis.MinTeamID || teamID > analysis.MaxTeamID {
		return 0, fmt.Errorf("%w: team_id must be in [%d, %d]", analysis.ErrInvalidTeamID, analysis.MinTeamID, analysis.MaxTeamID)
	}
	return teamID, nil
}

// GetHealth implements GET /api/v1/health: always 200, unaffected by
// Redis or upstream state.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
