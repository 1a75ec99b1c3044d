package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/matchrunner/internal/config"
	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/rcon"
	"github.com/ernie/matchrunner/internal/storage"
)

func TestRunMatchReturnsAbortInsteadOfExiting(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "matchrunner.db")
	cfg := &config.Config{
		Match: config.MatchConfig{
			MatchConfig:    domain.MatchConfig{Map: "de_dust2", MaxRounds: 6, OvertimeRounds: 6},
			Teams:          []domain.Team{{Name: "Alpha"}, {Name: "Bravo"}},
			CommandTimeout: time.Second,
		},
		// The game log never appears, so the match aborts
		Log: config.LogConfig{
			Path:             filepath.Join(dir, "console.log"),
			Level:            "info",
			PollInterval:     20 * time.Millisecond,
			DiscoveryTimeout: 200 * time.Millisecond,
		},
		Rcon:    config.RconConfig{Transport: rcon.TransportTCP, Backoff: rcon.BackoffConstant},
		Storage: config.StorageConfig{Path: dbPath},
	}
	require.NoError(t, cfg.Validate())

	err := runMatch(cfg, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match did not finish")

	store, err := storage.New(dbPath)
	require.NoError(t, err)
	defer store.Close()
}
