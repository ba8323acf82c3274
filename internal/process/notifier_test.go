package process

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *captureLogger) Error(string, ...any) {}

func (l *captureLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// fakeNotifyScript writes a shell script that appends its arguments to
// a log file, standing in for systemd-notify.
func fakeNotifyScript(t *testing.T) (script, logFile string) {
	t.Helper()
	dir := t.TempDir()
	script = filepath.Join(dir, "notify.sh")
	logFile = filepath.Join(dir, "calls.log")

	content := "#!/bin/sh\necho \"$@\" >> " + logFile + "\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("writing fake notify script: %v", err)
	}
	return script, logFile
}

func recordedCalls(t *testing.T, logFile string) []string {
	t.Helper()
	data, err := os.ReadFile(logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("reading call log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNotifierDisabledByDefault(t *testing.T) {
	t.Setenv(managedServiceEnv, "")
	n := NewNotifier(&captureLogger{})

	if n.Enabled() {
		t.Fatal("notifier enabled without the managed service env")
	}

	script, logFile := fakeNotifyScript(t)
	n.binary = script

	n.Ready()
	n.WatchdogPat()
	n.Stopping()

	if calls := recordedCalls(t, logFile); len(calls) != 0 {
		t.Errorf("disabled notifier made calls: %v", calls)
	}
}

func TestNotifierSignals(t *testing.T) {
	t.Setenv(managedServiceEnv, "1")
	n := NewNotifier(&captureLogger{})
	if !n.Enabled() {
		t.Fatal("notifier not enabled with managed service env set")
	}

	script, logFile := fakeNotifyScript(t)
	n.binary = script

	n.Ready()
	n.Stopping()

	calls := recordedCalls(t, logFile)
	if len(calls) != 2 || calls[0] != "--ready" || calls[1] != "STOPPING=1" {
		t.Errorf("calls = %v", calls)
	}
}

func TestWatchdogPat(t *testing.T) {
	t.Setenv(managedServiceEnv, "1")
	n := NewNotifier(&captureLogger{})
	script, logFile := fakeNotifyScript(t)
	n.binary = script

	n.WatchdogPat()

	calls := recordedCalls(t, logFile)
	if len(calls) != 1 || calls[0] != "WATCHDOG=1" {
		t.Errorf("calls = %v, want one WATCHDOG=1", calls)
	}
}

func TestNotifyFailureIsLoggedNotFatal(t *testing.T) {
	t.Setenv(managedServiceEnv, "1")
	logger := &captureLogger{}
	n := NewNotifier(logger)
	n.binary = filepath.Join(t.TempDir(), "missing-binary")

	n.Ready()
	if logger.warnCount() != 1 {
		t.Errorf("warns = %d, want 1", logger.warnCount())
	}
}
