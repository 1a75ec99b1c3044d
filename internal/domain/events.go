package domain

import "time"

// Event is a live match event as fanned out to WebSocket clients and the broker
type Event struct {
	Type      string      `json:"event"`
	MatchID   string      `json:"match_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Event types for live notifications beyond the scorebot catalogue
const (
	EventStateChange = "state_change"
	EventMatchResult = "match_result"
)

// StateChangeEvent is sent when the orchestrator changes state
type StateChangeEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}
