package fpl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fplsage/sage-api/internal/platform/resilience"
	"github.com/fplsage/sage-api/internal/usecase"
)

func TestResolveCurrentGameweek_PrefersIsCurrent(t *testing.T) {
	b := Bootstrap{Events: []BootstrapEvent{
		{ID: 9, IsNext: true},
		{ID: 10, IsCurrent: true},
	}}

	gw, err := ResolveCurrentGameweek(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw != 10 {
		t.Fatalf("expected gw=10, got %d", gw)
	}
}

func TestResolveCurrentGameweek_FallsBackToIsNext(t *testing.T) {
	b := Bootstrap{Events: []BootstrapEvent{{ID: 11, IsNext: true}}}

	gw, err := ResolveCurrentGameweek(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw != 11 {
		t.Fatalf("expected gw=11, got %d", gw)
	}
}

func TestResolveCurrentGameweek_UnknownWhenNeitherFlagSet(t *testing.T) {
	b := Bootstrap{Events: []BootstrapEvent{{ID: 1, Finished: true}}}

	if _, err := ResolveCurrentGameweek(b); !errors.Is(err, usecase.ErrSeasonResolutionUnknown) {
		t.Fatalf("expected ErrSeasonResolutionUnknown, got %v", err)
	}
}

func TestNextDeadline_SkipsFinishedEvents(t *testing.T) {
	b := Bootstrap{Events: []BootstrapEvent{
		{ID: 1, Finished: true, DeadlineTime: "2026-01-01T00:00:00Z"},
		{ID: 2, Finished: false, DeadlineTime: "2026-07-31T10:30:00Z"},
	}}

	deadline, ok := NextDeadline(b)
	if !ok {
		t.Fatalf("expected a deadline")
	}
	want := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC).Unix()
	if deadline != want {
		t.Fatalf("unexpected deadline: got %d want %d", deadline, want)
	}
}

func TestNextDeadline_FalseWhenNoUnfinishedEventHasADeadline(t *testing.T) {
	b := Bootstrap{Events: []BootstrapEvent{{ID: 1, Finished: true, DeadlineTime: "2026-01-01T00:00:00Z"}}}

	if _, ok := NextDeadline(b); ok {
		t.Fatalf("expected no deadline")
	}
}

func TestClient_FetchBootstrap_ClassifiesNotFoundAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})

	_, status, err := client.FetchBootstrap(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusUnavailable404 {
		t.Fatalf("expected StatusUnavailable404, got %s", status)
	}
}

func TestClient_FetchBootstrap_DecodesOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"events":[{"id":5,"is_current":true}]}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})

	bootstrap, status, err := client.FetchBootstrap(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %s", status)
	}
	if len(bootstrap.Events) != 1 || bootstrap.Events[0].ID != 5 {
		t.Fatalf("unexpected bootstrap: %+v", bootstrap)
	}
}

func TestClient_CurrentGameweek_PropagatesRequiredFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})

	_, _, _, err := client.CurrentGameweek(context.Background())
	if !errors.Is(err, usecase.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestClient_FetchBootstrap_CircuitBreakerRejectsAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL: srv.URL,
		Timeout: time.Second,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 1,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})

	if _, _, err := client.FetchBootstrap(context.Background()); err == nil {
		t.Fatalf("expected first call to fail from the 500 response")
	}

	_, status, err := client.FetchBootstrap(context.Background())
	if err == nil {
		t.Fatalf("expected circuit breaker to reject the second call")
	}
	if status != StatusFailed {
		t.Fatalf("expected StatusFailed once circuit is open, got %s", status)
	}
}
