package proactor

import "time"

// EventKind discriminates queue events for dispatch. Every producer
// tags its event; the core loop dispatches on the tag alone and never
// inspects payloads it does not own.
type EventKind string

const (
	// KindMQTTConnected reports a broker connection on a link.
	KindMQTTConnected EventKind = "mqtt_connected"

	// KindMQTTConnectFailed reports a failed connection attempt.
	KindMQTTConnectFailed EventKind = "mqtt_connect_failed"

	// KindMQTTDisconnected reports a lost broker connection.
	KindMQTTDisconnected EventKind = "mqtt_disconnected"

	// KindMQTTMessage carries raw inbound bytes from a broker.
	KindMQTTMessage EventKind = "mqtt_message"

	// KindMQTTSuback reports subscription acknowledgment progress.
	KindMQTTSuback EventKind = "mqtt_suback"

	// KindTimerFired carries an expired timer's callback onto the loop.
	KindTimerFired EventKind = "timer_fired"

	// KindWatchdogPat is a liveness heartbeat from a monitored actor.
	KindWatchdogPat EventKind = "watchdog_pat"

	// KindIOResult carries a completed I/O task's continuation.
	KindIOResult EventKind = "io_result"

	// KindFunc runs an arbitrary closure on the loop. Used by off-loop
	// callers that need serialized access to loop-owned state.
	KindFunc EventKind = "func"

	// KindShutdown stops the loop. Fatal shutdowns carry the cause.
	KindShutdown EventKind = "shutdown"
)

// Event is the tagged union flowing through the core queue. Only the
// fields relevant to its Kind are set; producers hand over owned data
// and never touch it again.
type Event struct {
	Kind EventKind

	// Link names the link an MQTT event belongs to.
	Link string

	// Topic and Payload carry inbound message bytes (KindMQTTMessage).
	Topic   string
	Payload []byte

	// PendingSubs is the count of still-unacknowledged subscriptions
	// (KindMQTTSuback).
	PendingSubs int

	// Actor names the heartbeat sender (KindWatchdogPat).
	Actor string

	// Fn is the deferred work for KindTimerFired, KindIOResult and
	// KindFunc. It runs on the core loop.
	Fn func()

	// Reason describes a shutdown (KindShutdown).
	Reason string

	// Fatal marks a shutdown as error-driven (watchdog expiry,
	// unrecoverable dispatch failure).
	Fatal bool

	// Enqueued is when the producer posted the event. Queue latency is
	// the gap between this and dispatch time.
	Enqueued time.Time
}
