// Package influxdb is the optional link-metrics sink.
//
// When enabled, the node samples link delivery counters, event store
// occupancy, and core-loop throughput into InfluxDB v2 for dashboards
// and capacity planning. The sink is observational only: writes are
// batched and asynchronous, errors surface through a callback, and an
// unreachable server costs nothing but the metrics themselves.
//
// The sink is disabled by default. Connect returns ErrDisabled when
// the configuration leaves it off; callers treat that as "no metrics"
// rather than a failure.
package influxdb
