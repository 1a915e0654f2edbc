package domain

import "time"

// Lead stages. A lead moves forward through the funnel and ends in exactly
// one terminal stage. Terminal leads are never reused by inbound resolution;
// a new message from the same contact opens a fresh lead instead.
const (
	StageNew        = "new"
	StageQualifying = "qualifying"
	StageQualified  = "qualified"
	StageInProgress = "in_progress"
	StageWon        = "won"
	StageLost       = "lost"
	StageAbandoned  = "abandoned"
)

// ReuseWindow is how far back inbound resolution looks for an open lead of
// the same contact before deciding to open a new one.
const ReuseWindow = 30 * 24 * time.Hour

var terminalStages = map[string]bool{
	StageWon:       true,
	StageLost:      true,
	StageAbandoned: true,
}

var knownStages = map[string]bool{
	StageNew:        true,
	StageQualifying: true,
	StageQualified:  true,
	StageInProgress: true,
	StageWon:        true,
	StageLost:       true,
	StageAbandoned:  true,
}

// IsTerminalStage reports whether a lead in this stage is closed for good.
func IsTerminalStage(stage string) bool {
	return terminalStages[stage]
}

// IsKnownStage reports whether the value is one of the defined stages.
func IsKnownStage(stage string) bool {
	return knownStages[stage]
}

// TerminalStages returns the closed stages for use in SQL filters.
func TerminalStages() []string {
	return []string{StageWon, StageLost, StageAbandoned}
}

// stageRank orders stages so that automation never moves a lead backwards.
// Manual moves by staff are not constrained by this.
var stageRank = map[string]int{
	StageNew:        0,
	StageQualifying: 1,
	StageQualified:  2,
	StageInProgress: 3,
	StageWon:        4,
	StageLost:       4,
	StageAbandoned:  4,
}

// CanAdvanceStage reports whether automation may move a lead from one stage
// to another. Forward moves are allowed, backward and terminal-escaping
// moves are not.
func CanAdvanceStage(from, to string) bool {
	if !knownStages[from] || !knownStages[to] {
		return false
	}
	if terminalStages[from] {
		return false
	}
	return stageRank[to] > stageRank[from]
}
