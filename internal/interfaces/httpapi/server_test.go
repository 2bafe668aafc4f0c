package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fplsage/sage-api/internal/platform/ratelimit"
)

func TestNewRouter_MountsSwaggerRoutesOnlyWhenEnabled(t *testing.T) {
	h := newTestHandler(t, stubEngine{})
	limiter := ratelimit.New(disabledRedisClient(t), ratelimit.Config{})

	withSwagger := NewRouter(h, limiter, nil, []string{"*"}, true)
	rec := httptest.NewRecorder()
	withSwagger.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected swagger route mounted, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "\"openapi\"") {
		t.Fatalf("expected an OpenAPI document, got %s", rec.Body.String())
	}

	withoutSwagger := NewRouter(h, limiter, nil, []string{"*"}, false)
	rec2 := httptest.NewRecorder()
	withoutSwagger.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil))
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("expected swagger route absent, got %d", rec2.Code)
	}
}

func TestOpenAPI_ServesEmbeddedDocument(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/swagger/openapi.json", nil)
	rec := httptest.NewRecorder()

	h.OpenAPI(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
}

func TestSwaggerUI_ServesHTMLReferencingOpenAPIRoute(t *testing.T) {
	h := newTestHandler(t, stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/swagger/", nil)
	rec := httptest.NewRecorder()

	h.SwaggerUI(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/swagger/openapi.json") {
		t.Fatalf("expected Swagger UI to reference the openapi.json route, got %s", rec.Body.String())
	}
}
