// Package process integrates the node with its service manager.
//
// The node runs as a long-lived systemd service on field hardware. This
// package sends the three signals that integration needs: READY once
// startup completes, WATCHDOG=1 while the core loop's own watchdog
// sweeps come back healthy, and STOPPING=1 when shutdown begins. The
// watchdog chain is deliberately two-level: internal actors pat the
// in-process watchdog, and only a fully healthy sweep pats systemd, so
// a single wedged component eventually restarts the whole process.
//
// Integration is opt-in via EDGELINK_MANAGED_SERVICE=1; without it the
// notifier is inert and nothing shells out.
package process
