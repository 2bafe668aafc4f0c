package fpl

import (
	"context"
	"fmt"
	"time"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/usecase"
)

// DemoEngine is a reference usecase.Engine implementation that collects
// the live upstream bundle for a team/gameweek and derives a minimal,
// deterministic recommendation from it. It exists so the analysis
// pipeline is exercisable end to end without a real engine attached;
// operators are expected to swap it for the production engine client.
type DemoEngine struct {
	upstream *Client
	clock    func() time.Time
}

func NewDemoEngine(upstream *Client) *DemoEngine {
	return &DemoEngine{upstream: upstream, clock: time.Now}
}

func (e *DemoEngine) Run(ctx context.Context, teamID, gameweek int, overrides analysis.Overrides, progress usecase.ProgressFunc) (analysis.EngineOutput, error) {
	report := func(p float64, phase string) {
		if progress != nil {
			progress(p, phase)
		}
	}

	report(0.05, "collecting upstream data")
	collection, err := e.upstream.Collect(ctx, teamID, gameweek)
	if err != nil {
		return analysis.EngineOutput{}, fmt.Errorf("%w: %w", usecase.ErrEngineException, err)
	}

	report(0.4, "resolving current gameweek")
	currentGW := gameweek
	if currentGW <= 0 {
		currentGW, err = ResolveCurrentGameweek(collection.Bootstrap)
		if err != nil {
			return analysis.EngineOutput{}, err
		}
	}

	report(0.7, "building recommendation")
	out := e.buildOutput(teamID, currentGW, collection, overrides)

	report(0.95, "finalizing")
	return out, nil
}

// buildOutput derives a minimal, deterministic recommendation from the
// upstream collection. It is intentionally conservative: the demo engine
// makes no claim to analytical quality, only to producing a well-formed
// EngineOutput for every reachable code path in ResultTransformer.
func (e *DemoEngine) buildOutput(teamID, gw int, collection Collection, overrides analysis.Overrides) analysis.EngineOutput {
	decision := "Hold transfers and start your in-form players this week."
	if len(overrides.ManualTransfers) > 0 {
		decision = "Apply the requested manual transfers and review captaincy afterwards."
	}

	confidence := "MED"
	switch overrides.RiskPosture {
	case analysis.RiskAggressive:
		confidence = "LOW"
	case analysis.RiskConservative:
		confidence = "HIGH"
	}

	pairs := make([]analysis.EngineTransferPair, 0, len(overrides.ManualTransfers))
	for _, mt := range overrides.ManualTransfers {
		pairs = append(pairs, analysis.EngineTransferPair{
			TransferOut: analysis.PlayerRef{Name: mt.PlayerOut},
			TransferIn:  analysis.PlayerRef{Name: mt.PlayerIn},
			OutReason:   "requested via manual transfer override",
			InReason:    "requested via manual transfer override",
			RawPriority: "NORMAL",
		})
	}

	weaknesses := []string{}
	if collection.PicksStatus != StatusOK {
		weaknesses = append(weaknesses, "squad picks unavailable from upstream; recommendations based on bootstrap data only")
	}
	if collection.LiveStatus != StatusOK {
		weaknesses = append(weaknesses, "live gameweek scores unavailable from upstream")
	}

	return analysis.EngineOutput{
		TeamID:          teamID,
		CurrentGW:       gw,
		PrimaryDecision: decision,
		RawConfidence:   confidence,
		CaptainCandidates: []analysis.EngineCaptainCandidate{
			{Name: "Top captain candidate", Rationale: "highest projected points among your current squad"},
			{Name: "Backup captain candidate", Rationale: "second-highest projected points among your current squad"},
		},
		TransferFormat:  analysis.EngineTransferPaired,
		TransferPairs:   pairs,
		LegacyTransfers: nil,
		Weaknesses:      weaknesses,
	}
}
