// Package config provides environment- and file-based configuration for fleetrunner.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the supervisor.
type Config struct {
	// Fleet topology
	Relays          int `yaml:"relays"`
	LeavesPerRelay  int `yaml:"leaves_per_relay"`
	CoordinatorPort int `yaml:"coordinator_port"`
	RelayBasePort   int `yaml:"relay_base_port"`

	// Sync timing passed through to the node executables (whole seconds on the wire)
	RelaySyncInterval  time.Duration `yaml:"relay_sync_interval"`
	LeafSyncInterval   time.Duration `yaml:"leaf_sync_interval"`
	LeafStatusInterval time.Duration `yaml:"leaf_status_interval"`

	// Node executables, one per tier, resolved relative to WorkspaceRoot
	WorkspaceRoot  string `yaml:"workspace_root"`
	ManifestName   string `yaml:"manifest"`
	CoordinatorCmd string `yaml:"coordinator_cmd"`
	RelayCmd       string `yaml:"relay_cmd"`
	LeafCmd        string `yaml:"leaf_cmd"`
	UsePTY         bool   `yaml:"use_pty"`

	// Supervisor behavior
	CoordinatorPause time.Duration `yaml:"coordinator_pause"`
	RelayPause       time.Duration `yaml:"relay_pause"`
	MonitorInterval  time.Duration `yaml:"monitor_interval"`
	ReportInterval   time.Duration `yaml:"report_interval"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	LogHistory       int           `yaml:"log_history"`

	// Output classification keywords (case-insensitive substring match)
	ReadinessKeywords  []string `yaml:"readiness_keywords"`
	ImportanceKeywords []string `yaml:"importance_keywords"`

	// Operator surface
	Verbose  bool   `yaml:"verbose"`
	LogJSON  bool   `yaml:"log_json"`
	HTTPAddr string `yaml:"http_addr"`
}

// DefaultReadinessKeywords promote a node from starting to running when seen
// in its output. The exact set is configuration, not a protocol guarantee.
var DefaultReadinessKeywords = []string{"listening", "connected", "started", "ready"}

// DefaultImportanceKeywords select which child lines are shown in non-verbose mode.
var DefaultImportanceKeywords = []string{
	"error", "failed", "success", "connected", "disconnected",
	"sync", "started", "listening", "shutdown", "shutting",
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() *Config {
	return &Config{
		Relays:          getIntEnv("FLEET_RELAYS", 2),
		LeavesPerRelay:  getIntEnv("FLEET_LEAVES_PER_RELAY", 2),
		CoordinatorPort: getIntEnv("FLEET_COORDINATOR_PORT", 8080),
		RelayBasePort:   getIntEnv("FLEET_RELAY_BASE_PORT", 9090),

		RelaySyncInterval:  getDurationEnv("FLEET_RELAY_SYNC_INTERVAL", 30*time.Second),
		LeafSyncInterval:   getDurationEnv("FLEET_LEAF_SYNC_INTERVAL", 60*time.Second),
		LeafStatusInterval: getDurationEnv("FLEET_LEAF_STATUS_INTERVAL", 30*time.Second),

		WorkspaceRoot:  getEnv("FLEET_WORKSPACE", "."),
		ManifestName:   getEnv("FLEET_MANIFEST", "fleet.yaml"),
		CoordinatorCmd: getEnv("FLEET_COORDINATOR_CMD", "bin/sync-coordinator"),
		RelayCmd:       getEnv("FLEET_RELAY_CMD", "bin/sync-relay"),
		LeafCmd:        getEnv("FLEET_LEAF_CMD", "bin/sync-leaf"),
		UsePTY:         getBoolEnv("FLEET_USE_PTY", false),

		CoordinatorPause: getDurationEnv("FLEET_COORDINATOR_PAUSE", 2*time.Second),
		RelayPause:       getDurationEnv("FLEET_RELAY_PAUSE", 3*time.Second),
		MonitorInterval:  getDurationEnv("FLEET_MONITOR_INTERVAL", time.Second),
		ReportInterval:   getDurationEnv("FLEET_REPORT_INTERVAL", 30*time.Second),
		ShutdownTimeout:  getDurationEnv("FLEET_SHUTDOWN_TIMEOUT", 10*time.Second),
		LogHistory:       getIntEnv("FLEET_LOG_HISTORY", 50),

		ReadinessKeywords:  DefaultReadinessKeywords,
		ImportanceKeywords: DefaultImportanceKeywords,

		Verbose:  getBoolEnv("FLEET_VERBOSE", false),
		LogJSON:  getBoolEnv("FLEET_LOG_JSON", false),
		HTTPAddr: getEnv("FLEET_HTTP_ADDR", ""),
	}
}

// ApplyFile overlays values from a YAML config file onto c. The path is
// always operator-supplied, so a missing file is an error, not a default
// to fall back from.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks topology and port preconditions before any node is launched.
func (c *Config) Validate() error {
	if c.Relays < 1 {
		return fmt.Errorf("relays must be at least 1, got %d", c.Relays)
	}
	if c.LeavesPerRelay < 0 {
		return fmt.Errorf("leaves-per-relay must be at least 0, got %d", c.LeavesPerRelay)
	}
	if c.CoordinatorPort < 1024 || c.CoordinatorPort > 65535 {
		return fmt.Errorf("coordinator port must be between 1024 and 65535, got %d", c.CoordinatorPort)
	}
	if c.RelayBasePort < 1024 || c.RelayBasePort > 65535 {
		return fmt.Errorf("relay base port must be between 1024 and 65535, got %d", c.RelayBasePort)
	}
	maxRelayPort := c.RelayBasePort + c.Relays - 1
	if c.CoordinatorPort >= c.RelayBasePort && c.CoordinatorPort <= maxRelayPort {
		return fmt.Errorf("coordinator port %d conflicts with relay port range %d-%d",
			c.CoordinatorPort, c.RelayBasePort, maxRelayPort)
	}
	if c.CoordinatorCmd == "" || c.RelayCmd == "" || c.LeafCmd == "" {
		return fmt.Errorf("all tier commands must be set")
	}
	if c.LogHistory <= 0 {
		return fmt.Errorf("log history must be positive, got %d", c.LogHistory)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
