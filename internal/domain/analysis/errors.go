package analysis

import "errors"

var (
	ErrInvalidTeamID  = errors.New("invalid team id")
	ErrInvalidGameweek = errors.New("invalid gameweek")
	ErrInvalidRisk    = errors.New("invalid risk posture")
	ErrInvalidOverride = errors.New("invalid override")
)
