package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It stands in for the game
// executables when launched by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("MATCHRUNNER_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	switch args[1] {
	case "sleep":
		time.Sleep(time.Minute)
	case "exit":
		os.Exit(3)
	}
	os.Exit(0)
}

func helperSpec(mode string) LaunchSpec {
	return LaunchSpec{
		Executable: os.Args[0],
		Args:       []string{"-test.run=TestHelperProcess", "--", mode},
		Env:        []string{"MATCHRUNNER_HELPER_PROCESS=1"},
	}
}

type fakeFinder struct {
	pids []int32
	err  error
}

func (f fakeFinder) FindByName(ctx context.Context, name string) ([]int32, error) {
	return f.pids, f.err
}

type countingStopper struct{ calls atomic.Int32 }

func (c *countingStopper) Quit() { c.calls.Add(1) }

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	s := New(Options{Finder: fakeFinder{}})
	_, err := s.LaunchServer(context.Background(), LaunchSpec{Executable: filepath.Join(t.TempDir(), "srcds_missing")})
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Contains(t, launchErr.Executable, "srcds_missing")
}

func TestLaunchServerAndCleanup(t *testing.T) {
	s := New(Options{Finder: fakeFinder{}, StopTimeout: 2 * time.Second})
	h, err := s.LaunchServer(context.Background(), helperSpec("sleep"))
	require.NoError(t, err)
	assert.True(t, h.Running())
	assert.Equal(t, KindServer, h.Kind)

	s.Cleanup(nil)
	waitDone(t, h)
	assert.False(t, h.Running())

	// Idempotent
	s.Cleanup(nil)
	s.Cleanup(h)
}

func TestClientExitTriggersCleanup(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "gamemode_competitive.cfg")
	require.NoError(t, os.WriteFile(cfg, []byte("original"), 0644))

	s := New(Options{Finder: fakeFinder{}})
	require.NoError(t, s.Protect(cfg))
	require.NoError(t, os.WriteFile(cfg, []byte("staged"), 0644))

	watcher := &countingStopper{}
	s.Own(watcher)

	h, err := s.LaunchClient(context.Background(), helperSpec("exit"))
	require.NoError(t, err)
	waitDone(t, h)
	assert.Error(t, h.Err())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg)
		return err == nil && string(data) == "original"
	}, 5*time.Second, 10*time.Millisecond)
	// The log watcher outlives the client so late lines are still read
	assert.Zero(t, watcher.calls.Load())

	s.Cleanup(nil)
	assert.Equal(t, int32(1), watcher.calls.Load())
}

func TestProtectRemovesCreatedFiles(t *testing.T) {
	dir := t.TempDir()
	created := filepath.Join(dir, "matchrunner.cfg")
	kept := filepath.Join(dir, "server.cfg")
	require.NoError(t, os.WriteFile(kept, []byte("hostname test"), 0600))

	s := New(Options{Finder: fakeFinder{}})
	require.NoError(t, s.Protect(created, kept))
	// A second snapshot of the same path keeps the first
	require.NoError(t, os.WriteFile(kept, []byte("changed"), 0600))
	require.NoError(t, s.Protect(kept))
	require.NoError(t, os.WriteFile(created, []byte("mp_maxrounds 6"), 0644))

	s.Cleanup(nil)

	_, err := os.Stat(created)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(kept)
	require.NoError(t, err)
	assert.Equal(t, "hostname test", string(data))
}

func TestEnsureNotAlreadyRunning(t *testing.T) {
	s := New(Options{Finder: fakeFinder{pids: []int32{4242}}})
	err := s.EnsureNotAlreadyRunning(context.Background(), "csgo")
	var running *AlreadyRunningError
	require.True(t, errors.As(err, &running))
	assert.Equal(t, int32(4242), running.PID)
	assert.Equal(t, "csgo", running.Name)
}

func TestEnsureNotAlreadyRunningIgnoresOwnProcess(t *testing.T) {
	s := New(Options{Finder: fakeFinder{}, StopTimeout: 2 * time.Second})
	h, err := s.LaunchClient(context.Background(), helperSpec("sleep"))
	require.NoError(t, err)
	defer s.Cleanup(nil)

	s.finder = fakeFinder{pids: []int32{int32(h.PID())}}
	assert.NoError(t, s.EnsureNotAlreadyRunning(context.Background(), "csgo"))
}

func TestEnsureNotAlreadyRunningFailsOpen(t *testing.T) {
	s := New(Options{Finder: fakeFinder{err: errors.New("permission denied")}})
	assert.NoError(t, s.EnsureNotAlreadyRunning(context.Background(), "csgo"))
}

func TestProcessTableFindsNothingForUnknownName(t *testing.T) {
	pids, err := ProcessTable{}.FindByName(context.Background(), "matchrunner-no-such-process")
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "csgo", normalizeName("CSGO.exe"))
	assert.Equal(t, "srcds_linux", normalizeName("/opt/csgo/srcds_linux"))
}
