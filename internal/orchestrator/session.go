package orchestrator

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/scorebot"
)

// ErrAlreadyFinished is returned when a session already has a result
var ErrAlreadyFinished = errors.New("orchestrator: session already has a result")

// Session is the state of one match, owned by its orchestrator
type Session struct {
	ID     string
	Teams  [2]domain.Team
	Config domain.MatchConfig

	mu     sync.Mutex
	events []scorebot.Event
	result *domain.Result
}

// NewSession creates a session with a fresh id
func NewSession(teams [2]domain.Team, cfg domain.MatchConfig) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Teams:  teams,
		Config: cfg,
	}
}

// Append adds an event to the buffer
func (s *Session) Append(e scorebot.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the buffered events in arrival order
func (s *Session) Events() []scorebot.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scorebot.Event(nil), s.events...)
}

// Len returns the number of buffered events
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Finish records the result. A session has at most one.
func (s *Session) Finish(result *domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return ErrAlreadyFinished
	}
	s.result = result
	return nil
}

// Result returns the final result, or nil while the match is running
func (s *Session) Result() *domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// discard drops buffered events when the match is abandoned
func (s *Session) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
