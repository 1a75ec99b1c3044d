package supervisor

import "fmt"

// LaunchError is returned when a process could not be started
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// AlreadyRunningError is returned when a singleton process is already
// running outside this supervisor
type AlreadyRunningError struct {
	Name string
	PID  int32
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s is already running (pid %d); close it before starting a match", e.Name, e.PID)
}
