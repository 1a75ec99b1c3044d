package domain

import "time"

// VetoActor is who performed a map veto action
type VetoActor string

const (
	VetoTeamA  VetoActor = "team_a"
	VetoTeamB  VetoActor = "team_b"
	VetoSystem VetoActor = "system"
)

// VetoKind is the kind of map veto action
type VetoKind string

const (
	VetoBan     VetoKind = "ban"
	VetoPick    VetoKind = "pick"
	VetoDecider VetoKind = "decider"
)

// VetoAction is one step of the pre-match map selection
type VetoAction struct {
	Map   string    `json:"map" yaml:"map"`
	Actor VetoActor `json:"actor" yaml:"actor"`
	Kind  VetoKind  `json:"kind" yaml:"kind"`
}

// MatchConfig holds the rules a single match is played under
type MatchConfig struct {
	Map               string       `json:"map" yaml:"map"`
	MaxRounds         int          `json:"max_rounds" yaml:"max_rounds"`           // regulation round limit R
	OvertimeRounds    int          `json:"overtime_rounds" yaml:"overtime_rounds"` // overtime block size O
	Overtime          bool         `json:"overtime" yaml:"overtime"`
	FreezeTime        int          `json:"freeze_time" yaml:"freeze_time"` // seconds
	Spectate          bool         `json:"spectate" yaml:"spectate"`
	Bots              bool         `json:"bots" yaml:"bots"`
	SwapStartingSides bool         `json:"swap_starting_sides" yaml:"swap_starting_sides"` // Team A starts on side 1 (T)
	Rating            RatingStake  `json:"rating" yaml:"rating"`
	Veto              []VetoAction `json:"veto,omitempty" yaml:"veto"`
}

// SelectedMap returns the map chosen by the veto (last pick or decider),
// falling back to the configured map
func (c MatchConfig) SelectedMap() string {
	for i := len(c.Veto) - 1; i >= 0; i-- {
		if c.Veto[i].Kind == VetoPick || c.Veto[i].Kind == VetoDecider {
			return c.Veto[i].Map
		}
	}
	return c.Map
}

// AttributedEvent is a match event with its participants resolved to
// roster identities. Actor and Target are nil when resolution failed.
type AttributedEvent struct {
	Type       string     `json:"type"`
	Timestamp  time.Time  `json:"timestamp"`
	Round      int        `json:"round"` // round in progress when the event happened (1-based)
	Actor      *PlayerRef `json:"actor,omitempty"`
	ActorName  string     `json:"actor_name,omitempty"`
	Target     *PlayerRef `json:"target,omitempty"`
	TargetName string     `json:"target_name,omitempty"`
	Weapon     string     `json:"weapon,omitempty"`
	Headshot   bool       `json:"headshot,omitempty"`
	Message    string     `json:"message,omitempty"`
	Winner     *int       `json:"winner,omitempty"` // logical team, round over events only
}

// Result is the final outcome of a match, produced exactly once
type Result struct {
	MatchID    string            `json:"match_id"`
	Map        string            `json:"map"`
	Teams      [2]Team           `json:"teams"`
	Score      [2]int            `json:"score"`    // tallied from round over events, by logical team
	Reported   [2]int            `json:"reported"` // game over score, mapped to logical teams
	Winner     int               `json:"winner"`   // TeamA, TeamB or TeamNone
	Rounds     int               `json:"rounds"`
	Events     []AttributedEvent `json:"events"`
	TeamDeltas [2]int            `json:"team_deltas"`
	Ratings    []RatingDelta     `json:"ratings"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Won reports whether the given logical team won outright
func (r *Result) Won(team int) bool {
	return r.Winner == team
}
