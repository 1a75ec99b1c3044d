// Package archive keeps a compressed copy of a finished match's server log.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Extension is appended to archived logs
const Extension = ".log.zst"

// Compress writes src to dir/<matchID>.log.zst and returns the archive path.
// The source log is left untouched.
func Compress(src, dir, matchID string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening log: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	dst := filepath.Join(dir, matchID+Extension)
	tmp := dst + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer os.Remove(tmp)

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		out.Close()
		return "", fmt.Errorf("creating encoder: %w", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return "", fmt.Errorf("compressing log: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return "", fmt.Errorf("flushing archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("finalizing archive: %w", err)
	}
	return dst, nil
}

// Open returns a reader over an archived log's original text
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	return &reader{dec: dec, file: f}, nil
}

type reader struct {
	dec  *zstd.Decoder
	file *os.File
}

func (r *reader) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

func (r *reader) Close() error {
	r.dec.Close()
	return r.file.Close()
}
