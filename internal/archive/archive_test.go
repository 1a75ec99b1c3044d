package archive

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/matchrunner/internal/scorebot"
)

func TestCompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "console.log")
	content := strings.Repeat(`L 10/15/2026 - 20:01:00: Team "CT" triggered "SFUI_Notice_CTs_Win" (CT "1") (T "0")`+"\n", 500)
	require.NoError(t, os.WriteFile(src, []byte(content), 0644))

	path, err := Compress(src, filepath.Join(dir, "archive"), "match-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "archive", "match-1"+Extension), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(content)))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	// Archived logs stay readable by the offline parser
	events, err := scorebot.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, events, 500)
	assert.FileExists(t, src)
}

func TestCompressMissingSource(t *testing.T) {
	_, err := Compress(filepath.Join(t.TempDir(), "missing.log"), t.TempDir(), "m")
	assert.Error(t, err)
}

func TestOpenReadsEverything(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "console.log")
	require.NoError(t, os.WriteFile(src, []byte("hello\n"), 0644))
	path, err := Compress(src, dir, "m2")
	require.NoError(t, err)

	r, err := Open(path)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello\n", string(data))
}
