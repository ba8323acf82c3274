package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

const (
	// managedServiceEnv enables service-manager integration when set
	// to "1". Unset or any other value leaves the notifier inert, so
	// running the binary by hand never shells out to systemd.
	managedServiceEnv = "EDGELINK_MANAGED_SERVICE"

	// notifyBinary is the tool used to talk to the service manager.
	notifyBinary = "systemd-notify"

	// notifyTimeout bounds one notification attempt.
	notifyTimeout = 2 * time.Second
)

// Logger defines the logging interface for the notifier.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Notifier forwards process lifecycle signals to systemd: readiness at
// startup, watchdog keep-alives while healthy, and a stopping notice
// on shutdown. With WatchdogSec set in the unit file, a wedged process
// stops patting and systemd restarts it; recovery then rides on the
// durable event store.
//
// Every method blocks on one subprocess invocation with a bounded
// wait. Hot paths must not call the notifier directly: the core loop
// hands WatchdogPat to its io task runner.
type Notifier struct {
	enabled bool
	binary  string
	logger  Logger
}

// NewNotifier creates a notifier. It is enabled only when the managed
// service environment variable is "1".
func NewNotifier(logger Logger) *Notifier {
	return &Notifier{
		enabled: os.Getenv(managedServiceEnv) == "1",
		binary:  notifyBinary,
		logger:  logger,
	}
}

// Enabled reports whether service-manager integration is on.
func (n *Notifier) Enabled() bool { return n.enabled }

// Ready tells the service manager that startup has finished.
func (n *Notifier) Ready() {
	if !n.enabled {
		return
	}
	if err := n.notify("--ready"); err != nil {
		n.logger.Warn("ready notification failed", "error", err)
	}
}

// Stopping tells the service manager that shutdown has begun.
func (n *Notifier) Stopping() {
	if !n.enabled {
		return
	}
	if err := n.notify("STOPPING=1"); err != nil {
		n.logger.Warn("stopping notification failed", "error", err)
	}
}

// WatchdogPat sends one watchdog keep-alive. As the core loop's
// external pat hook it fires on every fully healthy watchdog sweep,
// executed off the loop by the io task runner, so a stalled loop or
// stalled actor stops the keep-alives.
func (n *Notifier) WatchdogPat() {
	if !n.enabled {
		return
	}
	if err := n.notify("WATCHDOG=1"); err != nil {
		n.logger.Warn("watchdog notification failed", "error", err)
	}
}

// notify runs the notify binary once with a bounded wait.
func (n *Notifier) notify(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, n.binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %v: %w (%s)", n.binary, args, err, string(out))
	}
	return nil
}
