package domain

import "time"

// MatchStatus is a point-in-time view of a running match
type MatchStatus struct {
	MatchID          string    `json:"match_id"`
	State            string    `json:"state"`
	Map              string    `json:"map"`
	Teams            [2]string `json:"teams"`
	Round            int       `json:"round"`
	Score            [2]int    `json:"score"`
	Events           int       `json:"events"`
	ConsoleConnected bool      `json:"console_connected"`
	LastUpdated      time.Time `json:"last_updated"`
}
