// Package config provides configuration loading for Edgelink Core.
//
// Configuration is loaded from a YAML file with three layers of precedence:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. EDGELINK_* environment variables
//
// # Structure
//
// The root Config holds one section per subsystem: node identity, the
// list of MQTT links, proactor timing (ack timeout, reupload window,
// watchdog), the durable event persister, the SQLite audit database,
// the optional InfluxDB stats sink, the diagnostics API, and logging.
//
// # Environment Overrides
//
// Secrets (MQTT credentials, InfluxDB token, API token) should be
// supplied via environment variables rather than the YAML file:
//
//	EDGELINK_MQTT_USERNAME, EDGELINK_MQTT_PASSWORD
//	EDGELINK_INFLUXDB_TOKEN
//	EDGELINK_API_TOKEN
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
