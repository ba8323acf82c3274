// Package link implements the per-link communication state machine and
// the delivery guarantees built on top of it.
//
// # Components
//
//   - LinkState: the finite state machine tracking connectivity,
//     subscription setup, and peer liveness for one MQTT link. Pure
//     state, no I/O.
//   - AckManager: outstanding acknowledgment timers, at most one per
//     (link, message id), with at-most-once timeout callbacks.
//   - ReuploadTracker: sliding-window flow control for redelivering
//     persisted events after a reconnection.
//   - Links: the façade composing the above with the event persister
//     and the MQTT client pool, exposing the operations the proactor
//     core loop dispatches to.
//
// # Ownership
//
// Nothing in this package is safe for concurrent use. All state is
// owned and mutated exclusively by the proactor core loop; MQTT client
// threads reach it only through queue messages, and ack timers fire on
// the same loop.
//
// # Delivery
//
// GenerateEvent persists every outbound event before any publish
// attempt. The persisted copy is retired only by a peer ack for its
// uid. When a link returns to active, Links redelivers all pending
// events in original order through the ReuploadTracker's window, so
// delivery is at-least-once across disconnects, broker restarts, and
// process restarts.
package link
