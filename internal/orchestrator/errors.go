package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled settles a match that was torn down before it finished
	ErrCanceled = errors.New("orchestrator: match canceled")
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("orchestrator: already started")
	// ErrNotRunning is returned by Send once the match has settled
	ErrNotRunning = errors.New("orchestrator: match not running")
	// ErrNoConsole is returned by Send when no remote console is configured
	ErrNoConsole = errors.New("orchestrator: no remote console")
	// ErrWatcherStopped is returned when the log watcher ends before GAME_OVER
	ErrWatcherStopped = errors.New("orchestrator: log watcher stopped before game over")
)

// ProcessExitError aborts a match whose game client exited before it ended
type ProcessExitError struct {
	Kind string
	Err  error
}

func (e *ProcessExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("game %s exited before the match ended", e.Kind)
	}
	return fmt.Sprintf("game %s exited before the match ended: %v", e.Kind, e.Err)
}

func (e *ProcessExitError) Unwrap() error {
	return e.Err
}
