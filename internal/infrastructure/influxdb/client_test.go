package influxdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/config"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "edgelink-dev-token",
		Org:           "edgelink",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

// skipIfNoInfluxDB skips the test when no local InfluxDB is running.
func skipIfNoInfluxDB(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() with disabled config error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1" // nothing listens here

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() to dead server error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	defer client.Close() //nolint:errcheck // Test cleanup
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	client.Close() //nolint:errcheck // Test exercises post-close behaviour

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteLinkMetrics(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	client.WriteLinkMetrics("scada-12", "parent", "active", true, 0, 14, 1, 5)
	client.Flush()
}

func TestWriteStoreMetrics(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	client.WriteStoreMetrics("scada-12", 3, 4096, 100<<20)
	client.Flush()
}

func TestWriteCoreMetrics(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	client.WriteCoreMetrics("scada-12", 1200, 0, 17)
	client.Flush()
}

func TestWritePoint(t *testing.T) {
	client := skipIfNoInfluxDB(t)
	defer client.Close() //nolint:errcheck // Test cleanup

	client.WritePoint("custom",
		map[string]string{"node": "scada-12"},
		map[string]interface{}{"value": 1.0})
	client.WritePointWithTime("custom",
		map[string]string{"node": "scada-12"},
		map[string]interface{}{"value": 2.0},
		time.Now().Add(-time.Minute))
	client.Flush()
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestClose(t *testing.T) {
	client := skipIfNoInfluxDB(t)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes and flushes after Close are silent no-ops.
	client.WriteLinkMetrics("scada-12", "parent", "active", true, 0, 0, 0, 0)
	client.Flush()
}
