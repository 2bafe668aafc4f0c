// Package fpl implements UpstreamFPL: a thin, resilient client over the
// read-only fantasy.premierleague.com API. It fetches the bootstrap,
// fixtures, event, entry, entry history, picks, and live endpoints and
// classifies every HTTP outcome into one of a small set of status codes
// so callers never branch on raw status codes or transport errors.
package fpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/sourcegraph/conc"

	"github.com/fplsage/sage-api/internal/platform/logging"
	"github.com/fplsage/sage-api/internal/platform/resilience"
	"github.com/fplsage/sage-api/internal/usecase"
)

const defaultBaseURL = "https://fantasy.premierleague.com/api"

// Status is the classification every fetch collapses onto.
type Status string

const (
	StatusOK             Status = "OK"
	StatusUnavailable404 Status = "UNAVAILABLE_404"
	StatusFailedTimeout  Status = "FAILED_TIMEOUT"
	StatusFailedParse    Status = "FAILED_PARSE"
	StatusFailed         Status = "FAILED"
)

var errUpstreamTransient = errors.New("upstream fpl transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client is the concrete UpstreamFPL implementation.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// FetchResult carries both the classified outcome and, on StatusOK, the raw
// response body for the caller to decode.
type FetchResult struct {
	Status Status
	Body   []byte
	Err    error
}

// Bootstrap is the subset of /bootstrap-static/ fields UpstreamFPL needs.
type Bootstrap struct {
	Events []BootstrapEvent `json:"events"`
}

type BootstrapEvent struct {
	ID           int    `json:"id"`
	Finished     bool   `json:"finished"`
	IsCurrent    bool   `json:"is_current"`
	IsNext       bool   `json:"is_next"`
	DeadlineTime string `json:"deadline_time"`
}

// FetchBootstrap fetches /bootstrap-static/. Required: a non-OK status
// fails the whole collection with UPSTREAM_UNAVAILABLE.
func (c *Client) FetchBootstrap(ctx context.Context) (Bootstrap, Status, error) {
	var out Bootstrap
	status, err := c.fetchJSON(ctx, "/bootstrap-static/", &out)
	return out, status, err
}

// Fixture is the subset of /fixtures/ fields needed for gameweek-scoped
// progress reporting.
type Fixture struct {
	ID       int  `json:"id"`
	Event    int  `json:"event"`
	Started  bool `json:"started"`
	Finished bool `json:"finished"`
}

// FetchFixtures fetches /fixtures/. Required, same failure policy as bootstrap.
func (c *Client) FetchFixtures(ctx context.Context) ([]Fixture, Status, error) {
	var out []Fixture
	status, err := c.fetchJSON(ctx, "/fixtures/", &out)
	return out, status, err
}

// FetchEvent fetches /event/{gw}. Best-effort.
func (c *Client) FetchEvent(ctx context.Context, gw int) (json.RawMessage, Status, error) {
	var out json.RawMessage
	status, err := c.fetchJSON(ctx, fmt.Sprintf("/event/%d", gw), &out)
	return out, status, err
}

// FetchEntry fetches /entry/{team_id}/. Best-effort.
func (c *Client) FetchEntry(ctx context.Context, teamID int) (json.RawMessage, Status, error) {
	var out json.RawMessage
	status, err := c.fetchJSON(ctx, fmt.Sprintf("/entry/%d/", teamID), &out)
	return out, status, err
}

// FetchEntryHistory fetches /entry/{team_id}/history/. Best-effort.
func (c *Client) FetchEntryHistory(ctx context.Context, teamID int) (json.RawMessage, Status, error) {
	var out json.RawMessage
	status, err := c.fetchJSON(ctx, fmt.Sprintf("/entry/%d/history/", teamID), &out)
	return out, status, err
}

// FetchPicks fetches /entry/{team_id}/event/{gw}/picks/. Best-effort: a 404
// is recorded (e.g. team did not exist yet in that gameweek) but does not
// fail the collection.
func (c *Client) FetchPicks(ctx context.Context, teamID, gw int) (json.RawMessage, Status, error) {
	var out json.RawMessage
	status, err := c.fetchJSON(ctx, fmt.Sprintf("/entry/%d/event/%d/picks/", teamID, gw), &out)
	return out, status, err
}

// FetchLive fetches /event/{gw}/live/. Best-effort.
func (c *Client) FetchLive(ctx context.Context, gw int) (json.RawMessage, Status, error) {
	var out json.RawMessage
	status, err := c.fetchJSON(ctx, fmt.Sprintf("/event/%d/live/", gw), &out)
	return out, status, err
}

// CurrentGameweek satisfies usecase.GameweekResolver: it fetches the
// bootstrap payload fresh and resolves the current gameweek plus, when
// available, the next unfinished event's deadline.
func (c *Client) CurrentGameweek(ctx context.Context) (int, time.Time, bool, error) {
	bootstrap, status, err := c.FetchBootstrap(ctx)
	if status != StatusOK {
		return 0, time.Time{}, false, classifyRequiredFailure("bootstrap-static", status, err)
	}

	gw, err := ResolveCurrentGameweek(bootstrap)
	if err != nil {
		return 0, time.Time{}, false, err
	}

	deadline, ok := NextDeadline(bootstrap)
	return gw, time.Unix(deadline, 0).UTC(), ok, nil
}

// ErrSeasonResolutionUnknown signals resolve_current_gameweek could not
// find a current or next event.
var ErrSeasonResolutionUnknown = fmt.Errorf("%w", usecase.ErrSeasonResolutionUnknown)

// ResolveCurrentGameweek is a pure helper: first event with is_current,
// else first with is_next, else SEASON_RESOLUTION_UNKNOWN. Callers never
// see string-typed or absent gameweeks.
func ResolveCurrentGameweek(b Bootstrap) (int, error) {
	for _, e := range b.Events {
		if e.IsCurrent {
			return e.ID, nil
		}
	}
	for _, e := range b.Events {
		if e.IsNext {
			return e.ID, nil
		}
	}
	return 0, ErrSeasonResolutionUnknown
}

// NextDeadline returns the next unfinished event's deadline as a unix
// epoch, used by UsageTracker to compute reset_time when available.
func NextDeadline(b Bootstrap) (int64, bool) {
	for _, e := range b.Events {
		if !e.Finished && e.DeadlineTime != "" {
			t, err := time.Parse(time.RFC3339, e.DeadlineTime)
			if err == nil {
				return t.Unix(), true
			}
		}
	}
	return 0, false
}

// Collection bundles every artifact the full fetch sequence produces for
// one (team_id, gameweek) pair, ordered exactly as spec §4.1 lists them.
type Collection struct {
	Bootstrap     Bootstrap
	Fixtures      []Fixture
	Event         json.RawMessage
	Entry         json.RawMessage
	EntryHistory  json.RawMessage
	Picks         json.RawMessage
	PicksStatus   Status
	Live          json.RawMessage
	LiveStatus    Status
}

// Collect runs the full fetch sequence for one team/gameweek pair.
// Bootstrap and fixtures are required; a non-OK status on either aborts
// with ErrUpstreamUnavailable. Picks and live are best-effort: their
// status is reported on the Collection but never aborts the sequence.
func (c *Client) Collect(ctx context.Context, teamID, gw int) (Collection, error) {
	var out Collection

	bootstrap, status, err := c.FetchBootstrap(ctx)
	if status != StatusOK {
		return out, classifyRequiredFailure("bootstrap-static", status, err)
	}
	out.Bootstrap = bootstrap

	fixtures, status, err := c.FetchFixtures(ctx)
	if status != StatusOK {
		return out, classifyRequiredFailure("fixtures", status, err)
	}
	out.Fixtures = fixtures

	if gw <= 0 {
		gw, err = ResolveCurrentGameweek(bootstrap)
		if err != nil {
			return out, err
		}
	}

	// Event/entry/history/picks/live are independent best-effort fetches;
	// run them concurrently so a slow upstream endpoint doesn't serialize
	// onto the others' latency.
	var wg conc.WaitGroup
	wg.Go(func() { out.Event, _, _ = c.FetchEvent(ctx, gw) })
	wg.Go(func() { out.Entry, _, _ = c.FetchEntry(ctx, teamID) })
	wg.Go(func() { out.EntryHistory, _, _ = c.FetchEntryHistory(ctx, teamID) })
	wg.Go(func() { out.Picks, out.PicksStatus, _ = c.FetchPicks(ctx, teamID, gw) })
	wg.Go(func() { out.Live, out.LiveStatus, _ = c.FetchLive(ctx, gw) })
	wg.Wait()

	return out, nil
}

func classifyRequiredFailure(endpoint string, status Status, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s: status %s", usecase.ErrUpstreamUnavailable, endpoint, status)
	}
	return fmt.Errorf("%w: %s: %w", usecase.ErrUpstreamUnavailable, endpoint, crerr.Wrapf(err, "fetch %s", endpoint))
}

func (c *Client) fetchJSON(ctx context.Context, path string, target any) (Status, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "upstream fpl circuit breaker rejected request", "state", c.breaker.State())
			return StatusFailed, fmt.Errorf("%w: upstream fpl is temporarily unavailable", usecase.ErrUpstreamUnavailable)
		}
	}

	fullURL := c.baseURL + path
	out, err, _ := c.flight.Do(path, func() (any, error) {
		raw, status, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if status == StatusFailed || status == StatusFailedTimeout {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return fetchOutcome{status: status, body: raw}, reqErr
	})

	outcome, _ := out.(fetchOutcome)
	if err != nil {
		if outcome.status == "" {
			outcome.status = StatusFailed
		}
		return outcome.status, err
	}

	if outcome.status != StatusOK {
		return outcome.status, nil
	}

	if err := jsoniter.Unmarshal(outcome.body, target); err != nil {
		return StatusFailedParse, fmt.Errorf("decode upstream payload %s: %w", path, err)
	}
	return StatusOK, nil
}

type fetchOutcome struct {
	status Status
	body   []byte
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, Status, error) {
	parsed, err := url.Parse(fullURL)
	if err != nil {
		return nil, StatusFailed, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, StatusFailed, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, StatusFailedTimeout, fmt.Errorf("%w: request timeout: %v", errUpstreamTransient, err)
		}
		return nil, StatusFailed, fmt.Errorf("%w: send request: %v", errUpstreamTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 6<<20))
	if err != nil {
		return nil, StatusFailed, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return raw, StatusUnavailable404, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, StatusOK, nil
	default:
		return raw, StatusFailed, fmt.Errorf("upstream status=%d body=%s", resp.StatusCode, abbreviate(raw))
	}
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func abbreviate(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "...(" + strconv.Itoa(len(body)) + " bytes)"
}
