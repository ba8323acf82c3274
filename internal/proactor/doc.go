// Package proactor implements the single-threaded core message loop
// that serializes every concurrent input in the system.
//
// # Model
//
// All correctness-critical state — link state machines, ack tables,
// reupload trackers, the persister index — is owned by one goroutine:
// the consumer inside Proactor.Run. Every other thread of execution
// (MQTT client goroutines, runtime timers, the I/O task runner,
// components sending watchdog pats) communicates with that state
// exclusively by posting tagged events onto a multi-producer channel.
// The loop drains the channel one event at a time and does not start
// the next event until the current handler returns, so handlers are
// never reentered and the owned state needs no locks.
//
// # Timers
//
// The loop exposes a link.TimerManager whose expiries are marshalled
// through the queue rather than run on the runtime timer goroutine.
// Ack timeouts therefore interleave with connects, disconnects and
// inbound messages in strict arrival order.
//
// # Watchdog
//
// A WatchdogManager keeps a liveness table of named actors, updated by
// pat events and swept periodically on the loop. An actor that fails
// to pat within its timeout is fatal: the loop persists a problem
// event, reports a shutdown event, and Run returns ErrWatchdogExpired
// so the process supervisor can restart the node. On every healthy
// sweep an optional external pat forwards liveness to the OS-level
// watchdog.
//
// # Blocking work
//
// The TaskRunner executes blocking sub-tasks on a dedicated goroutine
// and posts each completion back onto the loop, keeping the loop
// itself free of anything that can stall.
package proactor
