package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Edgelink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Links     []LinkConfig    `yaml:"links"`
	Proactor  ProactorConfig  `yaml:"proactor"`
	Persister PersisterConfig `yaml:"persister"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NodeConfig identifies this node within the reporting hierarchy.
type NodeConfig struct {
	// Name is this node's short name, used as the source id on every
	// outbound message envelope and in persisted event uids.
	Name string `yaml:"name"`
}

// LinkConfig describes one named logical connection to a peer over one
// MQTT client.
type LinkConfig struct {
	// Name uniquely identifies the link within this node.
	Name string `yaml:"name"`

	// PeerName is the remote endpoint's node name, used for topic
	// addressing and envelope destination ids.
	PeerName string `yaml:"peer_name"`

	// Upstream marks the link whose peer this node reports events to.
	// At most one link may be upstream.
	Upstream bool `yaml:"upstream"`

	// Downstream marks the primary peer used for default publish
	// addressing. At most one link may be downstream.
	Downstream bool `yaml:"downstream"`

	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds; backoff doubles from InitialDelay up to MaxDelay.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// ProactorConfig contains core-loop timing and delivery settings.
type ProactorConfig struct {
	// AckTimeoutSeconds is how long to wait for a peer acknowledgment
	// before the ack timer fires. Default: 5.
	AckTimeoutSeconds int `yaml:"ack_timeout_seconds"`

	// NumInitialEventReuploads is the sliding-window size for the
	// reupload protocol: at most this many re-sent events may be
	// unacknowledged at any instant. Default: 5.
	NumInitialEventReuploads int `yaml:"num_initial_event_reuploads"`

	// QueueSize is the capacity of the core event queue. Producers
	// block when it is full. Default: 256.
	QueueSize int `yaml:"queue_size"`

	Watchdog WatchdogConfig `yaml:"watchdog"`
}

// WatchdogConfig contains liveness-monitoring settings.
type WatchdogConfig struct {
	// CheckIntervalSeconds is how often the watchdog scans the liveness
	// table. Default: 10.
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`

	// DefaultTimeoutSeconds is the pat deadline applied to monitored
	// actors that do not specify their own. Default: 60.
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`

	// PatExternal enables petting an OS-level watchdog (systemd) on
	// each check. Gated at runtime by EDGELINK_MANAGED_SERVICE.
	PatExternal bool `yaml:"pat_external"`
}

// PersisterConfig contains durable event store settings.
type PersisterConfig struct {
	// BaseDir is the root directory for day-bucketed event files.
	BaseDir string `yaml:"base_dir"`

	// MaxBytes is the byte budget for the store. Persisting beyond it
	// evicts the oldest entries first. Default: 100 MiB.
	MaxBytes int64 `yaml:"max_bytes"`
}

// DatabaseConfig contains SQLite database settings for the comm-event
// audit trail.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains the optional link-stats sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains diagnostics HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Token    string           `yaml:"token"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	WebSocket WebSocketConfig `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live event feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EDGELINK_SECTION_KEY
// For example: EDGELINK_DATABASE_PATH, EDGELINK_PERSISTER_BASE_DIR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Fill per-link defaults for fields the file omitted
	applyLinkDefaults(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Name: "edgelink-node",
		},
		Proactor: ProactorConfig{
			AckTimeoutSeconds:        5,
			NumInitialEventReuploads: 5,
			QueueSize:                256,
			Watchdog: WatchdogConfig{
				CheckIntervalSeconds:  10,
				DefaultTimeoutSeconds: 60,
			},
		},
		Persister: PersisterConfig{
			BaseDir:  "./data/events",
			MaxBytes: 100 << 20,
		},
		Database: DatabaseConfig{
			Path:        "./data/edgelink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8087,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				Path:           "/ws",
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EDGELINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Node
	if v := os.Getenv("EDGELINK_NODE_NAME"); v != "" {
		cfg.Node.Name = v
	}

	// Persister
	if v := os.Getenv("EDGELINK_PERSISTER_BASE_DIR"); v != "" {
		cfg.Persister.BaseDir = v
	}

	// Database
	if v := os.Getenv("EDGELINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT credentials apply to every link; per-link credentials in the
	// file win unless the variable is set.
	if v := os.Getenv("EDGELINK_MQTT_USERNAME"); v != "" {
		for i := range cfg.Links {
			cfg.Links[i].Auth.Username = v
		}
	}
	if v := os.Getenv("EDGELINK_MQTT_PASSWORD"); v != "" {
		for i := range cfg.Links {
			cfg.Links[i].Auth.Password = v
		}
	}

	// InfluxDB
	if v := os.Getenv("EDGELINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("EDGELINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("EDGELINK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("EDGELINK_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
}

// applyLinkDefaults fills zero-valued per-link fields after unmarshalling.
// Links come from a YAML list, so they cannot be pre-populated in
// defaultConfig the way scalar sections are.
func applyLinkDefaults(cfg *Config) {
	for i := range cfg.Links {
		link := &cfg.Links[i]
		if link.Broker.Port == 0 {
			link.Broker.Port = 1883
		}
		if link.Broker.ClientID == "" {
			link.Broker.ClientID = cfg.Node.Name + "-" + link.Name
		}
		if link.QoS == 0 {
			link.QoS = 1
		}
		if link.Reconnect.InitialDelay == 0 {
			link.Reconnect.InitialDelay = 1
		}
		if link.Reconnect.MaxDelay == 0 {
			link.Reconnect.MaxDelay = 60
		}
	}
}

// Validate checks the configuration for invalid or inconsistent values.
//
// Returns:
//   - error: Describing the first validation failure, or nil if valid
func (c *Config) Validate() error {
	if c.Node.Name == "" {
		return fmt.Errorf("node.name is required")
	}

	if len(c.Links) == 0 {
		return fmt.Errorf("at least one link must be configured")
	}

	seen := make(map[string]bool, len(c.Links))
	upstreamCount := 0
	downstreamCount := 0
	for i := range c.Links {
		link := &c.Links[i]
		if link.Name == "" {
			return fmt.Errorf("links[%d].name is required", i)
		}
		if seen[link.Name] {
			return fmt.Errorf("duplicate link name %q", link.Name)
		}
		seen[link.Name] = true

		if link.PeerName == "" {
			return fmt.Errorf("link %q: peer_name is required", link.Name)
		}
		if link.Broker.Host == "" {
			return fmt.Errorf("link %q: broker.host is required", link.Name)
		}
		if link.QoS < 0 || link.QoS > 2 {
			return fmt.Errorf("link %q: qos must be 0, 1, or 2", link.Name)
		}
		if link.Upstream {
			upstreamCount++
		}
		if link.Downstream {
			downstreamCount++
		}
	}
	if upstreamCount > 1 {
		return fmt.Errorf("at most one link may be marked upstream (found %d)", upstreamCount)
	}
	if downstreamCount > 1 {
		return fmt.Errorf("at most one link may be marked downstream (found %d)", downstreamCount)
	}

	if c.Proactor.AckTimeoutSeconds <= 0 {
		return fmt.Errorf("proactor.ack_timeout_seconds must be positive")
	}
	if c.Proactor.NumInitialEventReuploads <= 0 {
		return fmt.Errorf("proactor.num_initial_event_reuploads must be positive")
	}

	if c.Persister.BaseDir == "" {
		return fmt.Errorf("persister.base_dir is required")
	}
	if c.Persister.MaxBytes <= 0 {
		return fmt.Errorf("persister.max_bytes must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}

	return nil
}

// AckTimeout returns the ack timeout as a time.Duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Proactor.AckTimeoutSeconds) * time.Second
}

// WatchdogCheckInterval returns the watchdog scan interval as a time.Duration.
func (c *Config) WatchdogCheckInterval() time.Duration {
	return time.Duration(c.Proactor.Watchdog.CheckIntervalSeconds) * time.Second
}

// WatchdogDefaultTimeout returns the default pat deadline as a time.Duration.
func (c *Config) WatchdogDefaultTimeout() time.Duration {
	return time.Duration(c.Proactor.Watchdog.DefaultTimeoutSeconds) * time.Second
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a time.Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// UpstreamLink returns the link marked upstream, or nil if none is.
func (c *Config) UpstreamLink() *LinkConfig {
	for i := range c.Links {
		if c.Links[i].Upstream {
			return &c.Links[i]
		}
	}
	return nil
}

// DownstreamLink returns the link marked downstream (the primary peer),
// or nil if none is.
func (c *Config) DownstreamLink() *LinkConfig {
	for i := range c.Links {
		if c.Links[i].Downstream {
			return &c.Links[i]
		}
	}
	return nil
}
