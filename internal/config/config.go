package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Node     NodeConfig    `yaml:"node"`
	Cluster  ClusterConfig `yaml:"cluster"`
	State    StateConfig   `yaml:"state"`
	Sync     SyncConfig    `yaml:"sync"`
	Agent    AgentConfig   `yaml:"agent"`
	LogLevel string        `yaml:"log_level,omitempty"` // debug, info, warn, error
	LogFile  string        `yaml:"log_file,omitempty"`  // optional rotating log file
}

// NodeConfig contains node-specific configuration
type NodeConfig struct {
	Name     string     `yaml:"name"`
	Serf     SerfConfig `yaml:"serf"`
	HTTP     HTTPConfig `yaml:"http"`
	Database DBConfig   `yaml:"database"`
}

// SerfConfig contains Serf-specific configuration
type SerfConfig struct {
	BindAddr      string `yaml:"bind_addr"`
	AdvertiseAddr string `yaml:"advertise_addr,omitempty"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// DBConfig contains the task service database configuration
type DBConfig struct {
	Path string `yaml:"path"`
}

// ClusterConfig contains configuration for the renderer gossip group
type ClusterConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Seeds       []string `yaml:"seeds"`
	EncryptKey  string   `yaml:"encrypt_key,omitempty"`
	JoinTimeout int      `yaml:"join_timeout,omitempty"` // seconds
}

// StateConfig locates the device-local state shared by all processes
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// SyncConfig controls the synchronizer and its triggers
type SyncConfig struct {
	// Authority is the base URL of the task service.
	Authority    string        `yaml:"authority"`
	Interval     time.Duration `yaml:"interval"`
	Debounce     time.Duration `yaml:"debounce"`
	Freshness    time.Duration `yaml:"freshness"`
	ApplyTimeout time.Duration `yaml:"apply_timeout"`
	// Embedded makes the task service drain the state dir itself instead of
	// relying on a separate agent.
	Embedded bool `yaml:"embedded"`
}

// AgentConfig contains the device sync agent's local API settings
type AgentConfig struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Node.Name == "" {
		c.Node.Name = "node-1"
	}
	if c.Node.Serf.BindAddr == "" {
		c.Node.Serf.BindAddr = "0.0.0.0:7946"
	}
	if c.Node.HTTP.Port == 0 {
		c.Node.HTTP.Port = 8080
	}
	if c.Node.Database.Path == "" {
		c.Node.Database.Path = "./tasks.db"
	}
	if c.Cluster.Seeds == nil {
		c.Cluster.Seeds = []string{}
	}
	if c.Cluster.JoinTimeout == 0 {
		c.Cluster.JoinTimeout = 10
	}
	if c.State.Dir == "" {
		c.State.Dir = "./state"
	}
	if c.Sync.Authority == "" {
		c.Sync.Authority = "http://localhost:8080"
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.Debounce == 0 {
		c.Sync.Debounce = 250 * time.Millisecond
	}
	if c.Sync.Freshness == 0 {
		c.Sync.Freshness = 5 * time.Minute
	}
	if c.Sync.ApplyTimeout == 0 {
		c.Sync.ApplyTimeout = 10 * time.Second
	}
	if c.Agent.Port == 0 {
		c.Agent.Port = 8081
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	if c.Node.HTTP.Port < 0 || c.Node.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Node.HTTP.Port)
	}
	if c.Agent.Port < 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("invalid agent port %d", c.Agent.Port)
	}
	if c.Sync.Interval < 0 || c.Sync.Debounce < 0 || c.Sync.Freshness < 0 || c.Sync.ApplyTimeout < 0 {
		return fmt.Errorf("sync durations must not be negative")
	}
	return nil
}

// ParseLogLevel converts a log level string to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
