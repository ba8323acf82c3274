package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLinkMetrics records one sample of a link's delivery counters.
//
// State travels as a field rather than a tag to keep series cardinality
// at one per link. The write is non-blocking; points are batched and
// sent asynchronously.
func (c *Client) WriteLinkMetrics(node, link, state string, activeForSend bool, timeouts, acksReceived, reuploadsStarted, eventsReuploaded int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link_stats",
		map[string]string{
			"node": node,
			"link": link,
		},
		map[string]interface{}{
			"state":             state,
			"active_for_send":   activeForSend,
			"timeouts":          timeouts,
			"acks_received":     acksReceived,
			"reuploads_started": reuploadsStarted,
			"events_reuploaded": eventsReuploaded,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStoreMetrics records the durable event store's occupancy: how
// many events await acknowledgment and how close the store is to its
// byte budget.
func (c *Client) WriteStoreMetrics(node string, pendingEvents int, currBytes, maxBytes int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"event_store",
		map[string]string{
			"node": node,
		},
		map[string]interface{}{
			"pending_events": pendingEvents,
			"curr_bytes":     currBytes,
			"max_bytes":      maxBytes,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCoreMetrics records one sample of the core loop's throughput.
func (c *Client) WriteCoreMetrics(node string, eventsProcessed, queueDepth, queueHighWater int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"core_loop",
		map[string]string{
			"node": node,
		},
		map[string]interface{}{
			"events_processed": eventsProcessed,
			"queue_depth":      queueDepth,
			"queue_high_water": queueHighWater,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields, for measurements the helpers don't cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp,
// for samples that are not "now".
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
