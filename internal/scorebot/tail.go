package scorebot

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

const readChunk = 64 * 1024

// follower reads complete lines appended to a file. It survives
// copytruncate (size shrinks below the read offset) and rename rotation
// (the path now names a different file); both resume from offset 0.
type follower struct {
	path     string
	file     *os.File
	position int64
	partial  []byte
	buf      []byte
}

func newFollower(path string, file *os.File, position int64) *follower {
	return &follower{
		path:     path,
		file:     file,
		position: position,
		buf:      make([]byte, readChunk),
	}
}

// poll delivers every complete line written since the last call.
// emit returns false to stop early (the watcher is quitting).
func (f *follower) poll(emit func(string) bool) error {
	if err := f.readNew(emit); err != nil {
		return err
	}

	rotated, err := f.rotated()
	if err != nil || !rotated {
		return err
	}

	next, err := os.Open(f.path)
	if err != nil {
		// New file not created yet, keep the old handle
		return nil
	}
	f.file.Close()
	f.file = next
	f.position = 0
	f.partial = f.partial[:0]
	return f.readNew(emit)
}

// readNew reads from the current offset to the end of the open file
func (f *follower) readNew(emit func(string) bool) error {
	stat, err := f.file.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}

	// Handle copytruncate: file size smaller than position
	if stat.Size() < f.position {
		f.position = 0
		f.partial = f.partial[:0]
	}

	for f.position < stat.Size() {
		n, err := f.file.ReadAt(f.buf, f.position)
		if n > 0 {
			f.position += int64(n)
			f.partial = append(f.partial, f.buf[:n]...)
			if !f.drain(emit) {
				return nil
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading log: %w", err)
		}
	}
	return nil
}

// drain emits every complete line held in the partial buffer; an
// unterminated tail stays buffered until its newline arrives
func (f *follower) drain(emit func(string) bool) bool {
	for {
		idx := bytes.IndexByte(f.partial, '\n')
		if idx < 0 {
			return true
		}
		line := string(bytes.TrimRight(f.partial[:idx], "\r"))
		f.partial = f.partial[idx+1:]
		if line == "" {
			continue
		}
		if !emit(line) {
			return false
		}
	}
}

// rotated reports whether the path now names a different file
func (f *follower) rotated() (bool, error) {
	onDisk, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat log path: %w", err)
	}
	open, err := f.file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat log: %w", err)
	}
	return !os.SameFile(onDisk, open), nil
}

func (f *follower) close() {
	if f.file != nil {
		f.file.Close()
		f.file = nil
	}
}
