package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const minimalConfig = `
node:
  name: scada-12
links:
  - name: parent
    peer_name: aggregator-1
    upstream: true
    downstream: true
    broker:
      host: 127.0.0.1
`

// =============================================================================
// Load Tests
// =============================================================================

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.Name != "scada-12" {
		t.Errorf("Node.Name = %q, want %q", cfg.Node.Name, "scada-12")
	}
	if len(cfg.Links) != 1 {
		t.Fatalf("len(Links) = %d, want 1", len(cfg.Links))
	}

	// Per-link defaults applied
	link := cfg.Links[0]
	if link.Broker.Port != 1883 {
		t.Errorf("Broker.Port = %d, want 1883", link.Broker.Port)
	}
	if link.Broker.ClientID != "scada-12-parent" {
		t.Errorf("Broker.ClientID = %q, want %q", link.Broker.ClientID, "scada-12-parent")
	}
	if link.QoS != 1 {
		t.Errorf("QoS = %d, want 1", link.QoS)
	}
	if link.Reconnect.InitialDelay != 1 || link.Reconnect.MaxDelay != 60 {
		t.Errorf("Reconnect = %+v, want defaults 1/60", link.Reconnect)
	}

	// Section defaults
	if cfg.Proactor.AckTimeoutSeconds != 5 {
		t.Errorf("AckTimeoutSeconds = %d, want 5", cfg.Proactor.AckTimeoutSeconds)
	}
	if cfg.Proactor.NumInitialEventReuploads != 5 {
		t.Errorf("NumInitialEventReuploads = %d, want 5", cfg.Proactor.NumInitialEventReuploads)
	}
	if cfg.Persister.MaxBytes != 100<<20 {
		t.Errorf("Persister.MaxBytes = %d, want %d", cfg.Persister.MaxBytes, 100<<20)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "links: [unclosed"))
	if err == nil {
		t.Fatal("Load() expected error for malformed YAML")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EDGELINK_NODE_NAME", "env-node")
	t.Setenv("EDGELINK_MQTT_PASSWORD", "hunter2")
	t.Setenv("EDGELINK_API_PORT", "9099")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.Name != "env-node" {
		t.Errorf("Node.Name = %q, want env override", cfg.Node.Name)
	}
	if cfg.Links[0].Auth.Password != "hunter2" {
		t.Errorf("Auth.Password = %q, want env override", cfg.Links[0].Auth.Password)
	}
	if cfg.API.Port != 9099 {
		t.Errorf("API.Port = %d, want 9099", cfg.API.Port)
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing node name",
			mutate:  func(c *Config) { c.Node.Name = "" },
			wantSub: "node.name",
		},
		{
			name:    "no links",
			mutate:  func(c *Config) { c.Links = nil },
			wantSub: "at least one link",
		},
		{
			name: "duplicate link names",
			mutate: func(c *Config) {
				c.Links = append(c.Links, c.Links[0])
			},
			wantSub: "duplicate link name",
		},
		{
			name: "two upstream links",
			mutate: func(c *Config) {
				second := c.Links[0]
				second.Name = "parent-b"
				second.Downstream = false
				c.Links = append(c.Links, second)
			},
			wantSub: "upstream",
		},
		{
			name:    "missing peer name",
			mutate:  func(c *Config) { c.Links[0].PeerName = "" },
			wantSub: "peer_name",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.Links[0].QoS = 3 },
			wantSub: "qos",
		},
		{
			name:    "zero ack timeout",
			mutate:  func(c *Config) { c.Proactor.AckTimeoutSeconds = 0 },
			wantSub: "ack_timeout_seconds",
		},
		{
			name:    "zero reupload window",
			mutate:  func(c *Config) { c.Proactor.NumInitialEventReuploads = 0 },
			wantSub: "num_initial_event_reuploads",
		},
		{
			name:    "zero persister budget",
			mutate:  func(c *Config) { c.Persister.MaxBytes = 0 },
			wantSub: "max_bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

// =============================================================================
// Accessor Tests
// =============================================================================

func TestDurationAccessors(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.AckTimeout(); got != 5*time.Second {
		t.Errorf("AckTimeout() = %v, want 5s", got)
	}
	if got := cfg.WatchdogCheckInterval(); got != 10*time.Second {
		t.Errorf("WatchdogCheckInterval() = %v, want 10s", got)
	}
	if got := cfg.WatchdogDefaultTimeout(); got != 60*time.Second {
		t.Errorf("WatchdogDefaultTimeout() = %v, want 60s", got)
	}
}

func TestUpstreamDownstreamLinks(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	up := cfg.UpstreamLink()
	if up == nil || up.Name != "parent" {
		t.Errorf("UpstreamLink() = %v, want link %q", up, "parent")
	}
	down := cfg.DownstreamLink()
	if down == nil || down.Name != "parent" {
		t.Errorf("DownstreamLink() = %v, want link %q", down, "parent")
	}

	cfg.Links[0].Upstream = false
	if cfg.UpstreamLink() != nil {
		t.Error("UpstreamLink() should be nil when no link is upstream")
	}
}
