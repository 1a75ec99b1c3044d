// Package orchestrator runs one live match: it prepares and launches the
// game processes, connects the remote console, watches the server log and
// reconciles the collected events into a result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"

	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/scorebot"
	"github.com/ernie/matchrunner/internal/scoring"
	"github.com/ernie/matchrunner/internal/servercfg"
	"github.com/ernie/matchrunner/internal/supervisor"
)

// State is a step of the match lifecycle
type State string

const (
	StateIdle            State = "idle"
	StatePreparing       State = "preparing"
	StateLaunching       State = "launching"
	StateAwaitingConsole State = "awaiting_console"
	StateWatching        State = "watching"
	StateFinalizing      State = "finalizing"
	StateDone            State = "done"
	StateAborted         State = "aborted"
)

// Supervisor owns the external processes and staged files
type Supervisor interface {
	EnsureNotAlreadyRunning(ctx context.Context, name string) error
	Protect(paths ...string) error
	Own(stopper supervisor.Stopper)
	LaunchServer(ctx context.Context, spec supervisor.LaunchSpec) (*supervisor.Handle, error)
	LaunchClient(ctx context.Context, spec supervisor.LaunchSpec) (*supervisor.Handle, error)
	Cleanup(h *supervisor.Handle)
}

// Console is the remote console connection
type Console interface {
	Init(ctx context.Context) error
	Send(ctx context.Context, command string) (string, error)
	Close() error
}

// Watcher produces events from the server log
type Watcher interface {
	Start(ctx context.Context, path string) error
	Events() <-chan scorebot.Event
	Errors() <-chan error
	Quit()
}

// Preparer stages the files the server reads at startup
type Preparer interface {
	Files() []string
	Prepare(ctx context.Context, cfg domain.MatchConfig, teams [2]domain.Team) error
}

// EventSink receives live events. Publish must not block for long.
type EventSink interface {
	Publish(event domain.Event)
}

// Options wires an orchestrator to its collaborators
type Options struct {
	Supervisor Supervisor
	Watcher    Watcher
	Console    Console  // optional
	Preparer   Preparer // optional
	Sinks      []EventSink

	LogPath string
	Server  *supervisor.LaunchSpec // nil when the server is managed elsewhere
	Client  *supervisor.LaunchSpec // nil for headless matches

	SettleDelay       time.Duration // wait after GAME_OVER for the log to flush
	KeepaliveInterval time.Duration // console keepalive while watching, 0 disables
	CommandTimeout    time.Duration
}

// Orchestrator sequences one match. It settles exactly once, with a
// result or an error, and is not reusable.
type Orchestrator struct {
	opts    Options
	session *Session
	rules   scoring.Rules

	mu        sync.Mutex
	state     State
	started   bool
	round     int
	score     [2]int
	consoleUp bool
	updated   time.Time
	cancel    context.CancelFunc
	scheduler gocron.Scheduler

	done       chan struct{}
	settleOnce sync.Once
	result     *domain.Result
	err        error
}

// New creates an orchestrator for a session
func New(session *Session, opts Options) (*Orchestrator, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if opts.Supervisor == nil || opts.Watcher == nil {
		return nil, errors.New("supervisor and watcher are required")
	}
	if opts.LogPath == "" {
		return nil, errors.New("log path is required")
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 5 * time.Second
	}
	return &Orchestrator{
		opts:    opts,
		session: session,
		rules:   scoring.RulesFor(session.Config),
		state:   StateIdle,
		updated: time.Now().UTC(),
		done:    make(chan struct{}),
	}, nil
}

// Session returns the match session
func (o *Orchestrator) Session() *Session {
	return o.session
}

// Start runs the match in the background. The outcome is delivered by Wait.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrAlreadyStarted
	}
	select {
	case <-o.done:
		return ErrNotRunning
	default:
	}
	o.started = true

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	go o.run(runCtx)
	return nil
}

// Done is closed when the match has settled
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the match settles and returns its result
func (o *Orchestrator) Wait(ctx context.Context) (*domain.Result, error) {
	select {
	case <-o.done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Teardown abandons the match from any state. Collaborators are stopped
// and the match settles with ErrCanceled unless it already settled.
// Events collected so far are discarded.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	started := o.started
	o.started = true
	cancel := o.cancel
	o.mu.Unlock()

	if !started {
		// Never ran: release whatever the caller handed us
		o.cleanup()
		o.session.discard()
		o.transition(StateAborted)
		o.settle(nil, ErrCanceled)
		return
	}
	// cancel is nil when an earlier Teardown settled a match that never ran
	if cancel != nil {
		cancel()
	}
	<-o.done
}

// State returns the current lifecycle state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns a point-in-time view for status surfaces
func (o *Orchestrator) Snapshot() domain.MatchStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.MatchStatus{
		MatchID:          o.session.ID,
		State:            string(o.state),
		Map:              o.session.Config.SelectedMap(),
		Teams:            [2]string{o.session.Teams[0].Name, o.session.Teams[1].Name},
		Round:            o.round,
		Score:            o.score,
		Events:           o.session.Len(),
		ConsoleConnected: o.consoleUp,
		LastUpdated:      o.updated,
	}
}

// Send passes a command to the remote console while the match runs
func (o *Orchestrator) Send(ctx context.Context, command string) (string, error) {
	select {
	case <-o.done:
		return "", ErrNotRunning
	default:
	}
	if o.opts.Console == nil {
		return "", ErrNoConsole
	}
	return o.opts.Console.Send(ctx, command)
}

func (o *Orchestrator) run(ctx context.Context) {
	result, err := o.execute(ctx)
	o.cleanup()

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrCanceled) {
			err = fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		o.session.discard()
		o.transition(StateAborted)
		log.WithField("match", o.session.ID).Errorf("Match aborted: %v", err)
	} else {
		o.transition(StateDone)
		o.publish(domain.EventMatchResult, result.FinishedAt, result)
		log.WithField("match", o.session.ID).Infof("Match finished %d-%d", result.Score[0], result.Score[1])
	}
	o.settle(result, err)
}

func (o *Orchestrator) execute(ctx context.Context) (*domain.Result, error) {
	cfg := o.session.Config
	teams := o.session.Teams

	o.transition(StatePreparing)
	if o.opts.Client != nil {
		if err := o.opts.Supervisor.EnsureNotAlreadyRunning(ctx, processName(*o.opts.Client)); err != nil {
			return nil, err
		}
	}
	if o.opts.Preparer != nil {
		if err := o.opts.Supervisor.Protect(o.opts.Preparer.Files()...); err != nil {
			return nil, fmt.Errorf("protecting staged files: %w", err)
		}
		if err := o.opts.Preparer.Prepare(ctx, cfg, teams); err != nil {
			return nil, fmt.Errorf("preparing server files: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrCanceled
	}

	o.transition(StateLaunching)
	if o.opts.Server != nil {
		if _, err := o.opts.Supervisor.LaunchServer(ctx, *o.opts.Server); err != nil {
			return nil, err
		}
	}
	var client *supervisor.Handle
	if o.opts.Client != nil {
		h, err := o.opts.Supervisor.LaunchClient(ctx, *o.opts.Client)
		if err != nil {
			return nil, err
		}
		client = h
	}

	o.transition(StateAwaitingConsole)
	if o.opts.Console != nil {
		if err := o.opts.Console.Init(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ErrCanceled
			}
			// Degraded mode: the match is still observable through the log
			log.WithField("match", o.session.ID).Warnf("Remote console unavailable, continuing without it: %v", err)
		} else {
			o.mu.Lock()
			o.consoleUp = true
			o.mu.Unlock()
			o.configureServer(ctx)
			o.startKeepalive()
		}
	}

	o.transition(StateWatching)
	o.opts.Supervisor.Own(o.opts.Watcher)
	if err := o.opts.Watcher.Start(ctx, o.opts.LogPath); err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, err
	}
	if err := o.watch(ctx, client); err != nil {
		return nil, err
	}

	o.transition(StateFinalizing)
	result, err := scoring.Reconcile(scoring.Input{
		MatchID:    o.session.ID,
		Config:     cfg,
		Teams:      teams,
		Events:     o.session.Events(),
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := o.session.Finish(result); err != nil {
		return nil, err
	}
	return result, nil
}

// watch accumulates events until GAME_OVER plus the settle delay
func (o *Orchestrator) watch(ctx context.Context, client *supervisor.Handle) error {
	events := o.opts.Watcher.Events()
	errs := o.opts.Watcher.Errors()

	var clientExit <-chan struct{}
	if client != nil {
		clientExit = client.Done()
	}
	clientExited := func() bool {
		if client == nil {
			return false
		}
		select {
		case <-client.Done():
			return true
		default:
			return false
		}
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ErrCanceled

		case event, ok := <-events:
			if !ok {
				if settle != nil {
					// Keep the settle delay even if tailing ended early
					events = nil
					continue
				}
				if clientExited() {
					return &ProcessExitError{Kind: supervisor.KindClient, Err: client.Err()}
				}
				return ErrWatcherStopped
			}
			o.accept(event)
			if event.Type == scorebot.EventGameOver && settle == nil {
				log.WithField("match", o.session.ID).Infof("Game over, settling for %v", o.opts.SettleDelay)
				timer := time.NewTimer(o.opts.SettleDelay)
				defer timer.Stop()
				settle = timer.C
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.WithField("match", o.session.ID).Warnf("Log watcher: %v", err)

		case <-clientExit:
			if settle == nil {
				return &ProcessExitError{Kind: supervisor.KindClient, Err: client.Err()}
			}
			// Quitting after GAME_OVER is expected
			clientExit = nil

		case <-settle:
			return nil
		}
	}
}

// accept buffers an event and updates the live tally
func (o *Orchestrator) accept(event scorebot.Event) {
	o.session.Append(event)

	o.mu.Lock()
	if data, ok := event.Data.(scorebot.RoundOverData); ok && (data.Winner == scorebot.SideCT || data.Winner == scorebot.SideT) {
		o.round++
		o.score[o.rules.LogicalTeam(o.round, data.Winner)]++
	}
	o.updated = time.Now().UTC()
	o.mu.Unlock()

	o.publish(event.Type, event.Timestamp, event.Data)
}

// configureServer pushes the match settings over the console, best effort
func (o *Orchestrator) configureServer(ctx context.Context) {
	for _, command := range servercfg.Commands(o.session.Config, o.session.Teams) {
		cmdCtx, cancel := context.WithTimeout(ctx, o.opts.CommandTimeout)
		_, err := o.opts.Console.Send(cmdCtx, command)
		cancel()
		if err != nil {
			log.WithField("match", o.session.ID).Warnf("RCON %q failed: %v", command, err)
			return
		}
	}
}

func (o *Orchestrator) startKeepalive() {
	if o.opts.KeepaliveInterval <= 0 {
		return
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Warnf("Creating keepalive scheduler: %v", err)
		return
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(o.opts.KeepaliveInterval),
		gocron.NewTask(o.keepalive),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Warnf("Scheduling keepalive: %v", err)
		scheduler.Shutdown()
		return
	}
	scheduler.Start()

	o.mu.Lock()
	o.scheduler = scheduler
	o.mu.Unlock()
}

func (o *Orchestrator) keepalive() {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.CommandTimeout)
	defer cancel()
	_, err := o.opts.Console.Send(ctx, "status")

	o.mu.Lock()
	o.consoleUp = err == nil
	o.mu.Unlock()
	if err != nil {
		log.WithField("match", o.session.ID).Warnf("Console keepalive failed: %v", err)
	}
}

// cleanup runs on every path out of the match
func (o *Orchestrator) cleanup() {
	o.mu.Lock()
	scheduler := o.scheduler
	o.scheduler = nil
	o.consoleUp = false
	o.mu.Unlock()

	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			log.Warnf("Stopping keepalive: %v", err)
		}
	}
	o.opts.Watcher.Quit()
	if o.opts.Console != nil {
		if err := o.opts.Console.Close(); err != nil {
			log.Warnf("Closing console: %v", err)
		}
	}
	o.opts.Supervisor.Cleanup(nil)
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	if from == to || from == StateDone || from == StateAborted {
		o.mu.Unlock()
		return
	}
	o.state = to
	o.updated = time.Now().UTC()
	o.mu.Unlock()

	log.WithField("match", o.session.ID).Debugf("State %s -> %s", from, to)
	o.publish(domain.EventStateChange, time.Now().UTC(), domain.StateChangeEvent{From: string(from), To: string(to)})
}

func (o *Orchestrator) publish(eventType string, ts time.Time, data interface{}) {
	event := domain.Event{
		Type:      eventType,
		MatchID:   o.session.ID,
		Timestamp: ts,
		Data:      data,
	}
	for _, sink := range o.opts.Sinks {
		sink.Publish(event)
	}
}

func (o *Orchestrator) settle(result *domain.Result, err error) {
	o.settleOnce.Do(func() {
		o.result = result
		o.err = err
		close(o.done)
	})
}

func processName(spec supervisor.LaunchSpec) string {
	if spec.ProcessName != "" {
		return spec.ProcessName
	}
	return filepath.Base(spec.Executable)
}
