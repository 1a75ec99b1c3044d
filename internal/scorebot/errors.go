package scorebot

import (
	"errors"
	"fmt"
	"time"
)

// ErrStopped is returned by Start when the watcher has already quit
var ErrStopped = errors.New("scorebot: watcher stopped")

// LogNotFoundError is returned when the log file never appeared
type LogNotFoundError struct {
	Path   string
	Waited time.Duration
}

func (e *LogNotFoundError) Error() string {
	return fmt.Sprintf("log file %s not found after %v", e.Path, e.Waited)
}
