package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/matchrunner/internal/archive"
	"github.com/ernie/matchrunner/internal/scorebot"
)

const sampleLog = `L 04/15/2026 - 20:01:02: Team "CT" triggered "SFUI_Notice_CTs_Win" (CT "1") (T "0")
L 04/15/2026 - 20:03:10: Team "TERRORIST" triggered "SFUI_Notice_Target_Bombed" (CT "1") (T "1")
L 04/15/2026 - 20:05:44: Game Over: competitive mg_active de_dust2 score 1:1 after 5 min
`

func TestReadLogPlainAndArchived(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "match.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0644))

	plain, err := readLog(path)
	require.NoError(t, err)
	require.Len(t, plain, 3)
	assert.Equal(t, scorebot.EventGameOver, plain[2].Type)

	archived, err := archive.Compress(path, filepath.Join(dir, "archive"), "m-1")
	require.NoError(t, err)

	fromArchive, err := readLog(archived)
	require.NoError(t, err)
	assert.Equal(t, plain, fromArchive)
}

func TestReadLogMissing(t *testing.T) {
	_, err := readLog(filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}

func TestLastTimestamp(t *testing.T) {
	ts := time.Date(2026, 4, 15, 20, 5, 44, 0, time.UTC)
	events := []scorebot.Event{
		{Type: scorebot.EventRoundOver, Timestamp: ts.Add(-time.Minute)},
		{Type: scorebot.EventGameOver, Timestamp: ts},
		{Type: scorebot.EventChatSay},
	}
	assert.Equal(t, ts, lastTimestamp(events))

	before := time.Now().UTC()
	assert.False(t, lastTimestamp(nil).Before(before))
}
