package scorebot

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WatcherConfig controls log discovery and polling
type WatcherConfig struct {
	PollInterval     time.Duration
	DiscoveryTimeout time.Duration
	FromStart        bool // read a pre-existing file from offset 0 instead of its end
}

// Watcher tails a server log and emits one Event per recognized line, in file order
type Watcher struct {
	cfg    WatcherConfig
	events chan Event
	errors chan error
	done   chan struct{}

	mu       sync.Mutex
	stopped  bool
	started  bool
	follower *follower
	wg       sync.WaitGroup
	quitOnce sync.Once
}

// NewWatcher creates a new log watcher
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = 30 * time.Second
	}
	return &Watcher{
		cfg:    cfg,
		events: make(chan Event, 256),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}
}

// Events returns the event stream. It is closed when tailing stops after
// a successful Start, and never closed if Start failed or was not called.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns non-fatal read errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start opens the log for tailing, waiting for it to be created if needed
func (w *Watcher) Start(ctx context.Context, path string) error {
	file, existed, err := w.waitForFile(ctx, path)
	if err != nil {
		return err
	}

	var position int64
	if existed && !w.cfg.FromStart {
		pos, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return fmt.Errorf("seeking to end: %w", err)
		}
		position = pos
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.started {
		file.Close()
		return ErrStopped
	}
	w.started = true
	w.follower = newFollower(path, file, position)
	w.wg.Add(1)
	go w.tailLoop()

	log.WithField("path", path).Debugf("Tailing log from offset %d", position)
	return nil
}

// Quit stops tailing and releases the file. Safe to call repeatedly,
// concurrently, or without a successful Start.
func (w *Watcher) Quit() {
	w.quitOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
		w.wg.Wait()
		if w.follower != nil {
			w.follower.close()
		}
	})
}

// waitForFile opens path, polling until it exists or the discovery timeout passes
func (w *Watcher) waitForFile(ctx context.Context, path string) (*os.File, bool, error) {
	file, err := os.Open(path)
	if err == nil {
		return file, true, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("opening log file: %w", err)
	}

	log.WithField("path", path).Infof("Waiting up to %v for log file", w.cfg.DiscoveryTimeout)
	started := time.Now()
	deadline := time.NewTimer(w.cfg.DiscoveryTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-w.done:
			return nil, false, ErrStopped
		case <-deadline.C:
			return nil, false, &LogNotFoundError{Path: path, Waited: time.Since(started).Round(time.Millisecond)}
		case <-ticker.C:
			file, err := os.Open(path)
			if err == nil {
				return file, false, nil
			}
			if !os.IsNotExist(err) {
				return nil, false, fmt.Errorf("opening log file: %w", err)
			}
		}
	}
}

// tailLoop continuously reads new content from the log
func (w *Watcher) tailLoop() {
	defer w.wg.Done()
	defer close(w.events)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.follower.poll(w.emitLine); err != nil {
			select {
			case w.errors <- err:
			default:
			}
		}

		select {
		case <-w.done:
			return
		case <-ticker.C:
		}
	}
}

// emitLine parses a line and blocks until the event is consumed,
// returning false if the watcher quit meanwhile
func (w *Watcher) emitLine(line string) bool {
	event, ok := ParseLine(line)
	if !ok {
		return true
	}
	select {
	case w.events <- *event:
		return true
	case <-w.done:
		return false
	}
}
