package usecase

import (
	"strings"

	"github.com/fplsage/sage-api/internal/domain/analysis"
)

// ResultTransformer is the pure EngineOutput -> Result normalization
// component. It is stateless; every method is a free function in
// disguise, kept on a struct only so it can be swapped or mocked like
// every other usecase collaborator.
type ResultTransformer struct{}

func NewResultTransformer() *ResultTransformer {
	return &ResultTransformer{}
}

// Transform never errors: every field has a defined fallback, so a
// malformed or partial EngineOutput still yields a well-formed Result.
func (ResultTransformer) Transform(out analysis.EngineOutput, runID, generatedAt string) analysis.Result {
	result := analysis.Result{
		AnalysisID:      out.AnalysisID,
		TeamID:          out.TeamID,
		CurrentGW:       out.CurrentGW,
		PrimaryDecision: out.PrimaryDecision,
		Confidence:      clampConfidence(out.RawConfidence),
		ChipStrategy:    out.ChipStrategy,
		StartingXI:      out.StartingXI,
		Bench:           out.Bench,
		ProjectedXI:     out.ProjectedXI,
		ProjectedBench:  out.ProjectedBench,
		Weaknesses:      out.Weaknesses,
		Meta: analysis.ResultMeta{
			RunID:       runID,
			GeneratedAt: generatedAt,
		},
	}

	if len(out.CaptainCandidates) > 0 {
		result.Captain = captainRef(out.CaptainCandidates[0])
	}
	if len(out.CaptainCandidates) > 1 {
		result.ViceCaptain = captainRef(out.CaptainCandidates[1])
	}

	result.TransferRecommendations = transformTransfers(out)

	return result
}

func captainRef(c analysis.EngineCaptainCandidate) *analysis.PlayerRef {
	return &analysis.PlayerRef{
		Name:         c.Name,
		Team:         c.Team,
		Position:     c.Position,
		ExpectedPts:  c.ExpectedPts,
		OwnershipPct: c.OwnershipPct,
		Rationale:    c.Rationale,
	}
}

// transformTransfers implements the pair-expansion rule: each
// {transfer_out, transfer_in, in_reason, priority?} pair becomes two
// TransferRecommendation rows (OUT then IN), both carrying the same
// clamped priority, the OUT row's reason taken from transfer_out.reason
// and the IN row's from in_reason. A legacy, already-flat payload is
// passed through unchanged.
func transformTransfers(out analysis.EngineOutput) []analysis.TransferRecommendation {
	if out.TransferFormat == analysis.EngineTransferLegacy {
		return out.LegacyTransfers
	}

	recs := make([]analysis.TransferRecommendation, 0, len(out.TransferPairs)*2)
	for _, pair := range out.TransferPairs {
		priority := clampPriority(pair.RawPriority)

		recs = append(recs, analysis.TransferRecommendation{
			Action:      analysis.TransferOut,
			PlayerName:  pair.TransferOut.Name,
			Position:    pair.TransferOut.Position,
			Team:        pair.TransferOut.Team,
			Priority:    priority,
			Reason:      pair.OutReason,
			ExpectedPts: pair.TransferOut.ExpectedPts,
		})
		recs = append(recs, analysis.TransferRecommendation{
			Action:      analysis.TransferIn,
			PlayerName:  pair.TransferIn.Name,
			Position:    pair.TransferIn.Position,
			Team:        pair.TransferIn.Team,
			Priority:    priority,
			Reason:      pair.InReason,
			ExpectedPts: pair.TransferIn.ExpectedPts,
		})
	}
	return recs
}

func clampConfidence(raw string) analysis.Confidence {
	switch analysis.Confidence(raw) {
	case analysis.ConfidenceHigh, analysis.ConfidenceMed, analysis.ConfidenceLow:
		return analysis.Confidence(raw)
	default:
		return analysis.ConfidenceMed
	}
}

func clampPriority(raw string) analysis.Priority {
	p := analysis.Priority(strings.ToUpper(raw))
	switch p {
	case analysis.PriorityUrgent, analysis.PriorityHigh, analysis.PriorityMedium, analysis.PriorityLow, analysis.PriorityNormal:
		return p
	default:
		return analysis.PriorityNormal
	}
}
