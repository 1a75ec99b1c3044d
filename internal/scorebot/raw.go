package scorebot

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// RawTailer streams raw log lines without parsing
type RawTailer struct {
	path     string
	follower *follower
	Lines    chan string
	Errors   chan error
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRawTailer creates a new raw log tailer
func NewRawTailer(path string) *RawTailer {
	return &RawTailer{
		path:   path,
		Lines:  make(chan string, 100),
		Errors: make(chan error, 10),
		done:   make(chan struct{}),
	}
}

// ReadLastNLines reads the last n lines from the log file
func (t *RawTailer) ReadLastNLines(n int) ([]string, error) {
	file, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if n <= 0 || stat.Size() == 0 {
		return []string{}, nil
	}

	// Read backwards in blocks until n+1 newlines are buffered
	const blockSize = 4096
	var tail []byte
	position := stat.Size()
	for position > 0 && strings.Count(string(tail), "\n") <= n {
		readSize := int64(blockSize)
		if readSize > position {
			readSize = position
		}
		position -= readSize

		buf := make([]byte, readSize)
		if _, err := file.ReadAt(buf, position); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading block: %w", err)
		}
		tail = append(buf, tail...)
	}

	var lines []string
	for _, line := range strings.Split(string(tail), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	// The first line is partial unless we reached the start of the file
	if position > 0 && len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Start begins tailing the log file from the current end
func (t *RawTailer) Start() error {
	file, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	pos, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return fmt.Errorf("seeking to end: %w", err)
	}
	t.follower = newFollower(t.path, file, pos)

	t.wg.Add(1)
	go t.tailLoop()
	return nil
}

// Stop stops the tailer. Safe to call more than once.
func (t *RawTailer) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
		if t.follower != nil {
			t.follower.close()
		}
	})
}

func (t *RawTailer) tailLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.follower.poll(t.send); err != nil {
				select {
				case t.Errors <- err:
				default:
				}
			}
		}
	}
}

// send forwards a line to a viewer; a slow viewer loses lines rather than stalling the tail
func (t *RawTailer) send(line string) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.Lines <- line:
	default:
	}
	return true
}
