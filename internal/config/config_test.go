package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/matchrunner/internal/rcon"
)

const sampleConfig = `
match:
  map: de_inferno
  max_rounds: 24
  overtime: true
  overtime_rounds: 6
  freeze_time: 10
  swap_starting_sides: true
  rating:
    gain: 12
    loss: 18
  veto:
    - {map: de_nuke, actor: team_a, kind: ban}
    - {map: de_mirage, actor: team_b, kind: pick}
  teams:
    - name: Alpha
      players:
        - {id: 1, name: alice, steam_id: "STEAM_1:0:1"}
    - name: Bravo
      players:
        - {id: 2, name: bob, server_id: 7}
server:
  executable: /opt/cs/srcds_run
  args: ["-game", "csgo"]
rcon:
  address: 127.0.0.1:27015
  password: from-file
log:
  path: /opt/cs/logs/match.log
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matchrunner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "de_mirage", cfg.Match.SelectedMap())
	assert.Equal(t, 24, cfg.Match.MaxRounds)
	assert.True(t, cfg.Match.SwapStartingSides)
	assert.Equal(t, 12, cfg.Match.Rating.Gain)
	assert.Equal(t, 18, cfg.Match.Rating.Loss)

	teams := cfg.Teams()
	assert.Equal(t, "Alpha", teams[0].Name)
	assert.Equal(t, "STEAM_1:0:1", teams[0].Players[0].SteamID)
	require.NotNil(t, teams[1].Players[0].ServerID)
	assert.Equal(t, 7, *teams[1].Players[0].ServerID)

	spec := cfg.Server.Spec()
	require.NotNil(t, spec)
	assert.Equal(t, "/opt/cs/srcds_run", spec.Executable)
	assert.Equal(t, []string{"-game", "csgo"}, spec.Args)
	assert.Nil(t, cfg.Client.Spec())

	assert.Equal(t, "from-file", cfg.Rcon.Client().Password)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  path: game.log\n"))
	require.NoError(t, err)

	assert.Equal(t, 24, cfg.Match.MaxRounds)
	assert.Equal(t, 6, cfg.Match.OvertimeRounds)
	assert.Equal(t, 2*time.Second, cfg.Match.SettleDelay)
	assert.Equal(t, rcon.TransportTCP, cfg.Rcon.Transport)
	assert.Equal(t, rcon.BackoffConstant, cfg.Rcon.Backoff)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "matchrunner.db", cfg.Storage.Path)
	assert.Equal(t, "matchrunner", cfg.NATS.Prefix)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr())
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenDuration)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MATCHRUNNER_RCON_PASSWORD", "from-env")
	t.Setenv("MATCHRUNNER_JWT_SECRET", "jwt-from-env")
	t.Setenv("MATCHRUNNER_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Rcon.Password)
	assert.Equal(t, "jwt-from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/opt/cs/logs/match.log", cfg.Log.Path)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	dotenv := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("MATCHRUNNER_NATS_URL=nats://127.0.0.1:4222\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("MATCHRUNNER_NATS_URL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "match: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"odd regulation", func(c *Config) { c.Match.MaxRounds = 25 }, "max_rounds"},
		{"odd overtime", func(c *Config) { c.Match.OvertimeRounds = 5 }, "overtime_rounds"},
		{"one team", func(c *Config) { c.Match.Teams = c.Match.Teams[:1] }, "teams"},
		{"no log", func(c *Config) { c.Log.Path = "" }, "log.path"},
		{"bad transport", func(c *Config) { c.Rcon.Transport = "ws" }, "rcon.transport"},
		{"bad backoff", func(c *Config) { c.Rcon.Backoff = "random" }, "rcon.backoff"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOddOvertimeIgnoredWithoutOvertime(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	cfg.Match.Overtime = false
	cfg.Match.OvertimeRounds = 5
	assert.NoError(t, cfg.Validate())
}
