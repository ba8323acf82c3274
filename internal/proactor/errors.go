package proactor

import "errors"

// Domain-specific errors for proactor operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotRunning is returned when an operation requires a running
	// core loop and the proactor has not been started or has stopped.
	ErrNotRunning = errors.New("proactor: not running")

	// ErrAlreadyRunning is returned by Run when the loop is already
	// consuming the queue.
	ErrAlreadyRunning = errors.New("proactor: already running")

	// ErrWatchdogExpired is returned by Run when a monitored actor
	// failed to pat within its timeout and forced a fatal shutdown.
	ErrWatchdogExpired = errors.New("proactor: watchdog expired")

	// ErrDispatchPanic is returned by Run when a handler panicked. The
	// loop generates a shutdown event describing the cause before it
	// stops; this is the only path that terminates the process outright.
	ErrDispatchPanic = errors.New("proactor: panic in event handler")

	// ErrTaskRunnerStopped is returned when an I/O task is submitted
	// after the runner has shut down.
	ErrTaskRunnerStopped = errors.New("proactor: io task runner stopped")

	// ErrTaskQueueFull is returned when the I/O task backlog is full.
	// A full backlog means the runner thread is wedged on a task.
	ErrTaskQueueFull = errors.New("proactor: io task queue full")
)
