package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/clouddesk/internal/shared/paths"
)

// FileEnv names the optional static configuration file
const FileEnv = "CLOUDDESK_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Agent       AgentConfig       `toml:"agent" yaml:"agent"`
	Mailbox     MailboxConfig     `toml:"mailbox" yaml:"mailbox"`
	Remote      RemoteConfig      `toml:"remote" yaml:"remote"`
	Sync        SyncConfig        `toml:"sync" yaml:"sync"`
	Supervisor  SupervisorConfig  `toml:"supervisor" yaml:"supervisor"`
	Executables ExecutablesConfig `toml:"executables" yaml:"executables"`
	Logging     LogConfig         `toml:"logging" yaml:"logging"`
	RateLimit   RateLimitConfig   `toml:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig holds the local inbound listener configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" toml:"port" yaml:"port"`
	Host string `envconfig:"HOST" toml:"host" yaml:"host"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// AgentConfig holds the desktop agent's own listener and the launcher it
// reports to.
type AgentConfig struct {
	Port        string `envconfig:"AGENT_PORT" toml:"port" yaml:"port"`
	Host        string `envconfig:"AGENT_HOST" toml:"host" yaml:"host"`
	LauncherURL string `envconfig:"LAUNCHER_URL" toml:"launcher_url" yaml:"launcher_url"`
}

// Addr returns host:port for the agent listener.
func (a AgentConfig) Addr() string {
	return a.Host + ":" + a.Port
}

// MailboxConfig holds the file mailbox configuration.
type MailboxConfig struct {
	Dir            string   `envconfig:"MAILBOX_DIR" toml:"dir" yaml:"dir"`
	File           string   `envconfig:"MAILBOX_FILE" toml:"file" yaml:"file"`
	Debounce       Duration `envconfig:"MAILBOX_DEBOUNCE" toml:"debounce" yaml:"debounce"`
	ArchiveOnPurge bool     `envconfig:"MAILBOX_ARCHIVE_ON_PURGE" toml:"archive_on_purge" yaml:"archive_on_purge"`
}

// Path returns the active mailbox file path.
func (m MailboxConfig) Path() string {
	return filepath.Join(m.Dir, m.File)
}

// RemoteConfig holds the remote task API configuration.
type RemoteConfig struct {
	BaseURL    string   `envconfig:"REMOTE_API_URL" toml:"base_url" yaml:"base_url"`
	LoginType  string   `envconfig:"REMOTE_LOGIN_TYPE" toml:"login_type" yaml:"login_type"`
	Timeout    Duration `envconfig:"REMOTE_TIMEOUT" toml:"timeout" yaml:"timeout"`
	RetryCount int      `envconfig:"REMOTE_RETRIES" toml:"retry_count" yaml:"retry_count"`
	RateLimit  float64  `envconfig:"REMOTE_RPS" toml:"rate_limit" yaml:"rate_limit"`
}

// SyncConfig holds Task Synchronizer timing.
type SyncConfig struct {
	RefreshInterval Duration `envconfig:"SYNC_INTERVAL" toml:"refresh_interval" yaml:"refresh_interval"`
	DownloadTimeout Duration `envconfig:"DOWNLOAD_TIMEOUT" toml:"download_timeout" yaml:"download_timeout"`
}

// SupervisorConfig holds child process supervision settings.
type SupervisorConfig struct {
	PollInterval Duration `envconfig:"SUPERVISOR_POLL" toml:"poll_interval" yaml:"poll_interval"`
	GracePeriod  Duration `envconfig:"SUPERVISOR_GRACE" toml:"grace_period" yaml:"grace_period"`
	ReadyTimeout Duration `envconfig:"DESKTOP_READY_TIMEOUT" toml:"ready_timeout" yaml:"ready_timeout"`
	SearchRoots  []string `envconfig:"SUPERVISOR_SEARCH_ROOTS" toml:"search_roots" yaml:"search_roots"`
}

// ExecutablesConfig lists the spawn targets in fallback order.
type ExecutablesConfig struct {
	Browser    []string `envconfig:"BROWSER_TARGETS" toml:"browser" yaml:"browser"`
	Desktop    []string `envconfig:"DESKTOP_TARGETS" toml:"desktop" yaml:"desktop"`
	Transition []string `envconfig:"TRANSITION_TARGETS" toml:"transition" yaml:"transition"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development" yaml:"development"`
	File        string `envconfig:"LOG_FILE" toml:"file" yaml:"file"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"rps" yaml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled" yaml:"enabled"`
}

// Load builds configuration from defaults, then the static file named by
// CLOUDDESK_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns defaults on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile overlays a TOML or YAML file onto cfg. Keys absent from the file
// keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8765",
			Host: "127.0.0.1",
		},
		Agent: AgentConfig{
			Port:        "8766",
			Host:        "127.0.0.1",
			LauncherURL: "http://127.0.0.1:8765",
		},
		Mailbox: MailboxConfig{
			Dir:      paths.MailboxDir(),
			File:     paths.DefaultMailboxFile,
			Debounce: Duration(500 * time.Millisecond),
		},
		Remote: RemoteConfig{
			BaseURL:    "http://127.0.0.1:8000/api",
			LoginType:  "user",
			Timeout:    Duration(10 * time.Second),
			RetryCount: 2,
			RateLimit:  5,
		},
		Sync: SyncConfig{
			RefreshInterval: Duration(30 * time.Second),
			DownloadTimeout: Duration(60 * time.Second),
		},
		Supervisor: SupervisorConfig{
			PollInterval: Duration(500 * time.Millisecond),
			GracePeriod:  Duration(3 * time.Second),
			ReadyTimeout: Duration(3 * time.Second),
		},
		Executables: ExecutablesConfig{
			Browser:    []string{"browser_session", "browser_session.py"},
			Desktop:    []string{"desktop_manager", "desktop_manager.py"},
			Transition: []string{"transition_screen", "transition_screen.py"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
