// Package supervisor owns the external game server and client processes
// for one match, and restores files staged for them on exit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Process kinds
const (
	KindServer = "server"
	KindClient = "client"
)

// LaunchSpec describes how to start an external process
type LaunchSpec struct {
	Executable  string
	Args        []string
	WorkingDir  string
	ProcessName string // name in the process table, defaults to the executable's base name
	Env         []string
}

// Handle is a process started by a Supervisor
type Handle struct {
	Kind     string
	Spec     LaunchSpec
	cmd      *exec.Cmd
	detached bool
	done     chan struct{}
	err      error
}

// PID returns the process id
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Done is closed when the process exits
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the exit error once Done is closed
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Running reports whether the process is still alive
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Stopper is anything that must be stopped when the match is cleaned up
type Stopper interface {
	Quit()
}

// Options configures a Supervisor
type Options struct {
	Finder      ProcessFinder
	StopTimeout time.Duration // grace period between terminate and kill
}

type snapshot struct {
	path    string
	existed bool
	data    []byte
	mode    fs.FileMode
}

// Supervisor tracks the processes, watchers and staged files of one match.
// Each match owns its own instance.
type Supervisor struct {
	finder      ProcessFinder
	stopTimeout time.Duration

	mu        sync.Mutex
	server    *Handle
	client    *Handle
	stoppers  []Stopper
	protected []snapshot
}

// New creates a supervisor
func New(opts Options) *Supervisor {
	if opts.Finder == nil {
		opts.Finder = ProcessTable{}
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	return &Supervisor{
		finder:      opts.Finder,
		stopTimeout: opts.StopTimeout,
	}
}

// LaunchServer starts the dedicated server in its own process group
func (s *Supervisor) LaunchServer(ctx context.Context, spec LaunchSpec) (*Handle, error) {
	h, err := s.start(ctx, KindServer, spec, true)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.server = h
	s.mu.Unlock()
	return h, nil
}

// LaunchClient starts the game client. When the client exits, for any
// reason, the supervisor stops it and restores protected files. Owned
// watchers keep running until the next full Cleanup.
func (s *Supervisor) LaunchClient(ctx context.Context, spec LaunchSpec) (*Handle, error) {
	h, err := s.start(ctx, KindClient, spec, false)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.client = h
	s.mu.Unlock()

	go func() {
		<-h.done
		if h.err != nil {
			log.WithField("pid", h.PID()).Warnf("Game client exited: %v", h.err)
		} else {
			log.WithField("pid", h.PID()).Info("Game client exited")
		}
		s.cleanup(h, false)
	}()
	return h, nil
}

func (s *Supervisor) start(ctx context.Context, kind string, spec LaunchSpec, detached bool) (*Handle, error) {
	path, err := exec.LookPath(spec.Executable)
	if err != nil {
		return nil, &LaunchError{Executable: spec.Executable, Err: err}
	}

	// The process must outlive ctx; cleanup stops it explicitly
	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.WorkingDir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if detached {
		detach(cmd)
	}
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Executable: spec.Executable, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Executable: spec.Executable, Err: err}
	}

	h := &Handle{
		Kind:     kind,
		Spec:     spec,
		cmd:      cmd,
		detached: detached,
		done:     make(chan struct{}),
	}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()

	log.WithFields(log.Fields{"kind": kind, "pid": cmd.Process.Pid}).Infof("Started %s", path)
	return h, nil
}

// EnsureNotAlreadyRunning fails when a process with the given name is
// running and was not started by this supervisor. Inspection failures
// are logged and treated as not running.
func (s *Supervisor) EnsureNotAlreadyRunning(ctx context.Context, name string) error {
	pids, err := s.finder.FindByName(ctx, name)
	if err != nil {
		log.Warnf("Could not inspect process table for %s: %v", name, err)
		return nil
	}
	for _, pid := range pids {
		if !s.owns(pid) {
			return &AlreadyRunningError{Name: name, PID: pid}
		}
	}
	return nil
}

func (s *Supervisor) owns(pid int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range []*Handle{s.server, s.client} {
		if h != nil && int32(h.PID()) == pid {
			return true
		}
	}
	return false
}

// Protect snapshots files before they are modified so Cleanup can put
// them back. Files that do not exist yet are removed on cleanup.
func (s *Supervisor) Protect(paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range paths {
		if s.isProtected(path) {
			continue
		}
		snap := snapshot{path: path}
		info, err := os.Stat(path)
		switch {
		case err == nil:
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			snap.existed = true
			snap.data = data
			snap.mode = info.Mode().Perm()
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("stat %s: %w", path, err)
		}
		s.protected = append(s.protected, snap)
	}
	return nil
}

func (s *Supervisor) isProtected(path string) bool {
	for _, snap := range s.protected {
		if snap.path == path {
			return true
		}
	}
	return false
}

// Own registers something to stop during cleanup
func (s *Supervisor) Own(stopper Stopper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stoppers = append(s.stoppers, stopper)
}

// Cleanup stops owned watchers, stops the given process (or every tracked
// process when h is nil), restores protected files and clears the tracked
// handles. Safe to call repeatedly and concurrently.
func (s *Supervisor) Cleanup(h *Handle) {
	s.cleanup(h, true)
}

func (s *Supervisor) cleanup(h *Handle, stopWatchers bool) {
	s.mu.Lock()
	var stoppers []Stopper
	if stopWatchers {
		stoppers = s.stoppers
		s.stoppers = nil
	}
	var handles []*Handle
	for _, tracked := range []**Handle{&s.server, &s.client} {
		if *tracked != nil && (h == nil || *tracked == h) {
			handles = append(handles, *tracked)
			*tracked = nil
		}
	}
	if h != nil && len(handles) == 0 {
		handles = append(handles, h)
	}
	protected := s.protected
	s.protected = nil
	s.mu.Unlock()

	for _, stopper := range stoppers {
		stopper.Quit()
	}
	for _, handle := range handles {
		s.stop(handle)
	}
	for _, snap := range protected {
		if err := restore(snap); err != nil {
			log.Warnf("Restoring %s: %v", snap.path, err)
		}
	}
}

// stop terminates a running process, killing it after the grace period
func (s *Supervisor) stop(h *Handle) {
	if !h.Running() {
		return
	}
	if err := terminate(h.cmd, h.detached); err != nil {
		log.WithField("pid", h.PID()).Debugf("terminate: %v", err)
	}
	select {
	case <-h.done:
		return
	case <-time.After(s.stopTimeout):
	}
	log.WithField("pid", h.PID()).Warnf("%s did not exit, killing", h.Kind)
	if err := kill(h.cmd, h.detached); err != nil {
		log.WithField("pid", h.PID()).Warnf("kill: %v", err)
	}
	select {
	case <-h.done:
	case <-time.After(s.stopTimeout):
		log.WithField("pid", h.PID()).Errorf("%s survived kill", h.Kind)
	}
}

func restore(snap snapshot) error {
	if !snap.existed {
		err := os.Remove(snap.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.WriteFile(snap.path, snap.data, snap.mode)
}
