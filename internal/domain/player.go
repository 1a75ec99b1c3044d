package domain

// PlayerRef identifies a participant as known to the caller's roster.
// It is referenced, never mutated, by the match core.
type PlayerRef struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	SteamID  string `json:"steam_id,omitempty" yaml:"steam_id"`   // durable identifier, optional
	ServerID *int   `json:"server_id,omitempty" yaml:"server_id"` // userid assigned by the game server, unstable across matches
}

// Team is one logical competitor: A (index 0) or B (index 1)
type Team struct {
	Name    string      `json:"name" yaml:"name"`
	Players []PlayerRef `json:"players" yaml:"players"`
}

// Logical team indexes
const (
	TeamA    = 0
	TeamB    = 1
	TeamNone = -1 // tie, or no winner
)

// OtherTeam returns the opposing logical team index
func OtherTeam(team int) int {
	return 1 - team
}

// RatingStake is the precomputed ELO magnitude for a match, from Team A's
// perspective: Gain is applied when A wins, Loss when A loses.
type RatingStake struct {
	Gain int `json:"gain" yaml:"gain"`
	Loss int `json:"loss" yaml:"loss"`
}

// RatingDelta is the rating adjustment applied to one rating holder
type RatingDelta struct {
	Player PlayerRef `json:"player"`
	Team   int       `json:"team"`
	Delta  int       `json:"delta"`
}
