// Package scoring reconciles a finished match's events into a final score,
// attributed events and rating deltas.
package scoring

import "github.com/ernie/matchrunner/internal/domain"

// Rules are the round limits that decide when teams change sides.
// MaxRounds is the regulation limit R, OvertimeRounds the overtime block size O.
type Rules struct {
	MaxRounds         int
	OvertimeRounds    int
	SwapStartingSides bool // Team A starts on the T side
}

// RulesFor returns the side rules a match configuration plays under
func RulesFor(cfg domain.MatchConfig) Rules {
	return Rules{
		MaxRounds:         cfg.MaxRounds,
		OvertimeRounds:    cfg.OvertimeRounds,
		SwapStartingSides: cfg.SwapStartingSides,
	}
}

// HalfFlips returns how many half boundaries have been crossed before the
// 1-based round n is played. Regulation halves end at R/2 and R, and every
// overtime block has a half boundary at its midpoint and its end.
func (r Rules) HalfFlips(n int) int {
	half := r.MaxRounds / 2
	switch {
	case n <= half:
		return 0
	case n <= r.MaxRounds:
		return 1
	}
	otHalf := r.OvertimeRounds / 2
	if otHalf == 0 {
		return 2
	}
	return 2 + (n-1-r.MaxRounds)/otHalf
}

// OvertimeBlock returns the 1-based overtime block round n falls in, or 0
// during regulation: ⌈(n−R)/O⌉.
func (r Rules) OvertimeBlock(n int) int {
	if n <= r.MaxRounds || r.OvertimeRounds <= 0 {
		return 0
	}
	return (n - r.MaxRounds + r.OvertimeRounds - 1) / r.OvertimeRounds
}

// Inverted reports whether Team A plays the T side (raw side 1) in round n.
// Odd overtime blocks invert once more because each block alternates which
// team starts on which side.
func (r Rules) Inverted(n int) bool {
	inverted := r.HalfFlips(n)%2 == 1
	if r.OvertimeBlock(n)%2 == 1 {
		inverted = !inverted
	}
	if r.SwapStartingSides {
		inverted = !inverted
	}
	return inverted
}

// LogicalTeam maps a raw side index (0 or 1) in round n to Team A or B
func (r Rules) LogicalTeam(n, side int) int {
	if r.Inverted(n) {
		return domain.OtherTeam(side)
	}
	return side
}

// SideOf returns the raw side index a logical team plays in round n
func (r Rules) SideOf(n, team int) int {
	// The mapping is its own inverse
	return r.LogicalTeam(n, team)
}
