// Package analysis holds the value types shared by the analysis request,
// job tracking, and result transformation components.
package analysis

import (
	"context"
	"fmt"
	"time"
)

const (
	MinTeamID = 1
	MaxTeamID = 20_000_000

	MinGameweek = 1
	MaxGameweek = 38
)

// RiskPosture controls how aggressively the engine should weigh upside
// against variance when proposing transfers and captaincy.
type RiskPosture string

const (
	RiskConservative RiskPosture = "conservative"
	RiskBalanced     RiskPosture = "balanced"
	RiskAggressive   RiskPosture = "aggressive"
)

func (r RiskPosture) Valid() bool {
	switch r {
	case RiskConservative, RiskBalanced, RiskAggressive:
		return true
	default:
		return false
	}
}

// ChipName enumerates the FPL chips a manager may hold in reserve.
type ChipName string

const (
	ChipWildcard      ChipName = "wildcard"
	ChipFreeHit       ChipName = "free_hit"
	ChipBenchBoost    ChipName = "bench_boost"
	ChipTripleCaptain ChipName = "triple_captain"
)

func (c ChipName) Valid() bool {
	switch c {
	case ChipWildcard, ChipFreeHit, ChipBenchBoost, ChipTripleCaptain:
		return true
	default:
		return false
	}
}

// InjuryStatus mirrors the upstream provider's coarse fitness classification.
type InjuryStatus string

const (
	InjuryFit      InjuryStatus = "FIT"
	InjuryDoubtful InjuryStatus = "DOUBTFUL"
	InjuryOut      InjuryStatus = "OUT"
)

func (s InjuryStatus) Valid() bool {
	switch s {
	case InjuryFit, InjuryDoubtful, InjuryOut:
		return true
	default:
		return false
	}
}

// ManualTransfer pins a transfer the caller has already committed on the
// upstream site but which has not yet surfaced in the upstream API
// response. Player names are free-form; validation is deferred to the
// engine, which resolves them against its own player index.
type ManualTransfer struct {
	PlayerOut string `json:"player_out"`
	PlayerIn  string `json:"player_in"`
}

func (m ManualTransfer) Validate() error {
	if m.PlayerOut == "" || m.PlayerIn == "" {
		return fmt.Errorf("manual transfer requires both player_out and player_in")
	}
	return nil
}

// InjuryOverride corrects a stale or missing injury status the upstream
// provider has not yet reflected.
type InjuryOverride struct {
	Player string       `json:"player"`
	Status InjuryStatus `json:"status"`
	Chance int          `json:"chance"`
}

func (i InjuryOverride) Validate() error {
	if i.Player == "" {
		return fmt.Errorf("injury override requires a player name")
	}
	if !i.Status.Valid() {
		return fmt.Errorf("unknown injury status: %s", i.Status)
	}
	if i.Chance < 0 || i.Chance > 100 {
		return fmt.Errorf("injury override chance must be in [0, 100]")
	}
	return nil
}

// Overrides captures every caller-supplied adjustment an analysis request
// may carry. A non-zero Overrides disables result caching: the output is
// specific to the caller's stated intent, not reusable for anyone else.
// Per the external interface contract, any override field present in the
// request body — even an empty list — counts as "present" and suppresses
// the cache read; IsZero below implements exactly that rule over the
// parsed struct (HTTPSurface tracks field-presence at decode time, not
// here, since Go's zero value can't distinguish "absent" from "empty").
type Overrides struct {
	AvailableChips  []ChipName        `json:"available_chips,omitempty"`
	FreeTransfers   *int              `json:"free_transfers,omitempty"`
	RiskPosture     RiskPosture       `json:"risk_posture,omitempty"`
	ManualTransfers []ManualTransfer  `json:"manual_transfers,omitempty"`
	InjuryOverrides []InjuryOverride  `json:"injury_overrides,omitempty"`
	Thresholds      map[string]float64 `json:"thresholds,omitempty"`

	// present records that at least one override field was sent on the
	// wire, so an empty list is distinguishable from an absent one (see
	// HTTPSurface decode).
	present bool
}

// MarkPresent flags this Overrides value as having been supplied on the
// wire, even if every field is otherwise zero/empty.
func (o *Overrides) MarkPresent() {
	o.present = true
}

func (o Overrides) IsZero() bool {
	if o.present {
		return false
	}
	return len(o.AvailableChips) == 0 &&
		o.FreeTransfers == nil &&
		o.RiskPosture == "" &&
		len(o.ManualTransfers) == 0 &&
		len(o.InjuryOverrides) == 0 &&
		len(o.Thresholds) == 0
}

func (o Overrides) Validate() error {
	for _, c := range o.AvailableChips {
		if !c.Valid() {
			return fmt.Errorf("unknown chip: %s", c)
		}
	}
	if o.FreeTransfers != nil && (*o.FreeTransfers < 0 || *o.FreeTransfers > 5) {
		return fmt.Errorf("free_transfers must be in [0, 5]")
	}
	if o.RiskPosture != "" && !o.RiskPosture.Valid() {
		return fmt.Errorf("unknown risk posture: %s", o.RiskPosture)
	}
	for _, t := range o.ManualTransfers {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, inj := range o.InjuryOverrides {
		if err := inj.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AnalysisRequest is the normalized, validated input to AnalysisService.Start.
type AnalysisRequest struct {
	TeamID    int
	Gameweek  int // 0 means "resolve the current gameweek"
	Overrides Overrides
	ClientIP  string
}

func (r AnalysisRequest) ValidateTeamID() error {
	if r.TeamID < MinTeamID || r.TeamID > MaxTeamID {
		return fmt.Errorf("%w: team_id must be in [%d, %d]", ErrInvalidTeamID, MinTeamID, MaxTeamID)
	}
	return nil
}

func (r AnalysisRequest) ValidateGameweek() error {
	if r.Gameweek == 0 {
		return nil
	}
	if r.Gameweek < MinGameweek || r.Gameweek > MaxGameweek {
		return fmt.Errorf("%w: gameweek must be in [%d, %d]", ErrInvalidGameweek, MinGameweek, MaxGameweek)
	}
	return nil
}

func (r AnalysisRequest) Validate() error {
	if err := r.ValidateTeamID(); err != nil {
		return err
	}
	if err := r.ValidateGameweek(); err != nil {
		return err
	}
	if err := r.Overrides.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	return nil
}

// JobStatus is the one-way state machine every Job travels through.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the legal JobStatus edges. Anything not
// listed here is dropped by JobStore with a logged warning rather than
// surfaced as an error, since duplicate terminal events from a racing background task
// are expected.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobQueued:  {JobRunning: true, JobCancelled: true},
	JobRunning: {JobCompleted: true, JobFailed: true, JobCancelled: true},
}

func CanTransition(from, to JobStatus) bool {
	if from == to {
		return false
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// JobError is the structured error persisted on a failed Job and mirrored
// into the terminal WS error frame.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is the in-process record tracking one analysis run.
type Job struct {
	ID         string
	TeamID     int
	Gameweek   int
	Overrides  Overrides
	Status     JobStatus
	Phase      string
	Progress   float64
	Result     *Result
	Error      *JobError
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	cancel context.CancelFunc
}

// WithCancel attaches the cancellation token a background task watches.
func (j *Job) WithCancel(cancel context.CancelFunc) {
	j.cancel = cancel
}

// Cancel invokes the job's cancellation token, if one has been attached.
func (j *Job) Cancel() {
	if j.cancel != nil {
		j.cancel()
	}
}

// HasOverrides reports whether this job's request carried any override,
// which governs both cache-bypass and (on success) cache-write-skip.
func (j *Job) HasOverrides() bool {
	return !j.Overrides.IsZero()
}

// Event is the five-type payload JobStore.publish fans out and
// ProgressStreamer forwards over the WebSocket, per the wire contract in
// the external interfaces section.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
	EventHeartbeat EventType = "heartbeat"
)

type Event struct {
	Type     EventType `json:"type"`
	Progress float64   `json:"progress,omitempty"`
	Phase    string    `json:"phase,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// JobSubscription is a live handle into a Job's event stream.
type JobSubscription struct {
	JobID  string
	Events <-chan Event
	Cancel func()
}
