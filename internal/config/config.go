package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/rcon"
	"github.com/ernie/matchrunner/internal/scorebot"
	"github.com/ernie/matchrunner/internal/supervisor"
)

// EnvPrefix is the prefix of environment overrides
const EnvPrefix = "MATCHRUNNER_"

// Config holds the application configuration
type Config struct {
	Match   MatchConfig   `yaml:"match"`
	Server  LaunchConfig  `yaml:"server"`
	Client  LaunchConfig  `yaml:"client"`
	Rcon    RconConfig    `yaml:"rcon"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Archive ArchiveConfig `yaml:"archive"`
	NATS    NATSConfig    `yaml:"nats"`
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
}

// MatchConfig holds the rules and rosters of the match to run
type MatchConfig struct {
	domain.MatchConfig `yaml:",inline"`

	Teams             []domain.Team `yaml:"teams"`
	ConfigFile        string        `yaml:"config_file"` // server cfg written before launch, optional
	SettleDelay       time.Duration `yaml:"settle_delay"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
}

// LaunchConfig describes an external program. An empty executable means
// the program is not managed by matchrunner.
type LaunchConfig struct {
	Executable  string   `yaml:"executable"`
	Args        []string `yaml:"args"`
	WorkingDir  string   `yaml:"working_dir"`
	ProcessName string   `yaml:"process_name"`
	Env         []string `yaml:"env"`
}

// RconConfig holds remote console settings. An empty address disables the console.
type RconConfig struct {
	Address    string        `yaml:"address"`
	Password   string        `yaml:"password"`
	Transport  string        `yaml:"transport"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Backoff    string        `yaml:"backoff"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig holds the game log location and matchrunner's own log level
type LogConfig struct {
	Path             string        `yaml:"path"`
	Level            string        `yaml:"level"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	FromStart        bool          `yaml:"from_start"`
}

// StorageConfig holds SQLite settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig holds log archive settings. An empty dir disables archiving.
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// NATSConfig holds event publication settings. An empty URL disables publishing.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// HTTPConfig holds the live surface settings
type HTTPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Port       int    `yaml:"port"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// overrides are the settings that may come from the environment
type overrides struct {
	RconPassword string `env:"RCON_PASSWORD"`
	JWTSecret    string `env:"JWT_SECRET"`
	NATSURL      string `env:"NATS_URL"`
	LogPath      string `env:"LOG_PATH"`
	LogLevel     string `env:"LOG_LEVEL"`
}

// Load reads configuration from a YAML file. A .env file next to it is
// loaded first, then MATCHRUNNER_* variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("loading %s: %w", dotenv, err)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var o overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	if o.RconPassword != "" {
		c.Rcon.Password = o.RconPassword
	}
	if o.JWTSecret != "" {
		c.Auth.JWTSecret = o.JWTSecret
	}
	if o.NATSURL != "" {
		c.NATS.URL = o.NATSURL
	}
	if o.LogPath != "" {
		c.Log.Path = o.LogPath
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	return nil
}

func (c *Config) applyDefaults() {
	// Match defaults follow competitive MR12 with MR3 overtime
	if c.Match.MaxRounds == 0 {
		c.Match.MaxRounds = 24
	}
	if c.Match.OvertimeRounds == 0 {
		c.Match.OvertimeRounds = 6
	}
	if c.Match.SettleDelay == 0 {
		c.Match.SettleDelay = 2 * time.Second
	}
	if c.Match.CommandTimeout == 0 {
		c.Match.CommandTimeout = 5 * time.Second
	}

	if c.Rcon.Transport == "" {
		c.Rcon.Transport = rcon.TransportTCP
	}
	if c.Rcon.Backoff == "" {
		c.Rcon.Backoff = rcon.BackoffConstant
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "matchrunner.db"
	}

	if c.NATS.Prefix == "" {
		c.NATS.Prefix = "matchrunner"
	}

	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}

	if c.Auth.TokenDuration == 0 {
		c.Auth.TokenDuration = 24 * time.Hour
	}
}

// Validate checks the settings a match cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.Match.MaxRounds <= 0 || c.Match.MaxRounds%2 != 0 {
		errs = append(errs, fmt.Errorf("match.max_rounds must be a positive even number, got %d", c.Match.MaxRounds))
	}
	if c.Match.Overtime && (c.Match.OvertimeRounds <= 0 || c.Match.OvertimeRounds%2 != 0) {
		errs = append(errs, fmt.Errorf("match.overtime_rounds must be a positive even number, got %d", c.Match.OvertimeRounds))
	}
	if len(c.Match.Teams) != 2 {
		errs = append(errs, fmt.Errorf("match.teams must list exactly 2 teams, got %d", len(c.Match.Teams)))
	}
	if c.Log.Path == "" {
		errs = append(errs, errors.New("log.path is required"))
	}
	switch c.Rcon.Transport {
	case rcon.TransportTCP, rcon.TransportUDP:
	default:
		errs = append(errs, fmt.Errorf("rcon.transport must be %q or %q, got %q", rcon.TransportTCP, rcon.TransportUDP, c.Rcon.Transport))
	}
	switch c.Rcon.Backoff {
	case rcon.BackoffConstant, rcon.BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("rcon.backoff must be %q or %q, got %q", rcon.BackoffConstant, rcon.BackoffExponential, c.Rcon.Backoff))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// ConfigureLogging applies the configured log level
func (c *Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	log.SetLevel(level)
	return nil
}

// Teams returns the two rosters, Team A first
func (c *Config) Teams() [2]domain.Team {
	var teams [2]domain.Team
	copy(teams[:], c.Match.Teams)
	return teams
}

// Spec converts the launch settings, returning nil when unmanaged
func (l LaunchConfig) Spec() *supervisor.LaunchSpec {
	if l.Executable == "" {
		return nil
	}
	return &supervisor.LaunchSpec{
		Executable:  l.Executable,
		Args:        l.Args,
		WorkingDir:  l.WorkingDir,
		ProcessName: l.ProcessName,
		Env:         l.Env,
	}
}

// Client converts the console settings
func (r RconConfig) Client() rcon.Config {
	return rcon.Config{
		Address:    r.Address,
		Password:   r.Password,
		Transport:  r.Transport,
		MaxRetries: r.MaxRetries,
		RetryDelay: r.RetryDelay,
		Backoff:    r.Backoff,
		Timeout:    r.Timeout,
	}
}

// Watcher converts the log settings
func (l LogConfig) Watcher() scorebot.WatcherConfig {
	return scorebot.WatcherConfig{
		PollInterval:     l.PollInterval,
		DiscoveryTimeout: l.DiscoveryTimeout,
		FromStart:        l.FromStart,
	}
}

// Addr returns the HTTP listen address
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.ListenAddr, h.Port)
}
