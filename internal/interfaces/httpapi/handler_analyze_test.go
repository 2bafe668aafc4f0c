package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/jobstore"
	"github.com/fplsage/sage-api/internal/platform/idgen"
	"github.com/fplsage/sage-api/internal/platform/rediscache"
	"github.com/fplsage/sage-api/internal/platform/redisx"
	"github.com/fplsage/sage-api/internal/usecase"
)

type stubResolver struct {
	gw int
}

func (s stubResolver) CurrentGameweek(context.Context) (int, time.Time, bool, error) {
	return s.gw, time.Now().Add(24 * time.Hour), true, nil
}

type stubEngine struct {
	out analysis.EngineOutput
	err error
}

func (s stubEngine) Run(ctx context.Context, teamID, gameweek int, overrides analysis.Overrides, progress usecase.ProgressFunc) (analysis.EngineOutput, error) {
	return s.out, s.err
}

func disabledRedisClient(t *testing.T) *redisx.Client {
	t.Helper()
	client, err := redisx.New(context.Background(), "")
	if err != nil {
		t.Fatalf("build disabled redis client: %v", err)
	}
	return client
}

func newTestHandler(t *testing.T, engine usecase.Engine) *Handler {
	t.Helper()

	usage := usecase.NewUsageTracker(disabledRedisClient(t), stubResolver{gw: 10}, 2)
	cache := rediscache.New(disabledRedisClient(t), 300)
	jobs := jobstore.New(idgen.NewJobIDGenerator(), nil, time.Hour)

	svc, err := usecase.NewAnalysisService(usage, cache, jobs, engine, usecase.NewResultTransformer(), nil, usecase.AnalysisServiceConfig{WorkerPoolSize: 2})
	if err != nil {
		t.Fatalf("build analysis service: %v", err)
	}
	t.Cleanup(svc.Release)

	streamer := NewStreamer(jobs, nil, []string{"*"})
	return NewHandler(svc, usage, jobs, streamer, nil)
}

func TestPostAnalyze_AcceptsValidRequest(t *testing.T) {
	h := newTestHandler(t, stubEngine{out: analysis.EngineOutput{CurrentGW: 10}})

	body := bytes.NewBufferString(`{"team_id": 12345}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	rec := httptest.NewRecorder()

	h.PostAnalyze(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload["analysis_id"] == "" || payload["analysis_id"] == nil {
		t.Fatalf("expected a non-empty analysis_id, got %+v", payload)
	}
}

func TestPostAnalyze_RejectsInvalidTeamID(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	body := bytes.NewBufferString(`{"team_id": -1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	rec := httptest.NewRecorder()

	h.PostAnalyze(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostAnalyze_RejectsMalformedBody(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()

	h.PostAnalyze(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetAnalyze_ReturnsNotFoundForUnknownJob(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyze/does-not-exist", nil)
	req.SetPathValue("id", "does-not-exist")
	rec := httptest.NewRecorder()

	h.GetAnalyze(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAnalyze_ReturnsOKForKnownJob(t *testing.T) {
	h := newTestHandler(t, stubEngine{out: analysis.EngineOutput{CurrentGW: 10}})

	postBody := bytes.NewBufferString(`{"team_id": 555}`)
	postReq := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", postBody)
	postRec := httptest.NewRecorder()
	h.PostAnalyze(postRec, postReq)

	var accepted map[string]any
	_ = json.Unmarshal(postRec.Body.Bytes(), &accepted)
	jobID, _ := accepted["analysis_id"].(string)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/analyze/"+jobID, nil)
	getReq.SetPathValue("id", jobID)
	getRec := httptest.NewRecorder()

	h.GetAnalyze(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestGetUsage_ReturnsSnapshotForValidTeamID(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/100", nil)
	req.SetPathValue("team_id", "100")
	rec := httptest.NewRecorder()

	h.GetUsage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetUsage_RejectsNonNumericTeamID(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/not-a-number", nil)
	req.SetPathValue("team_id", "not-a-number")
	rec := httptest.NewRecorder()

	h.GetUsage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestParseTeamID_RejectsOutOfBoundsValue(t *testing.T) {
	if _, err := parseTeamID("0"); err == nil {
		t.Fatalf("expected an error for team_id below the valid range")
	}
}

func TestGetHealth_AlwaysReturnsOK(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	h.GetHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
