package proactor

import (
	"sort"
	"time"
)

// WatchdogManager tracks the liveness of named actors. Each monitored
// actor must pat within its timeout; an actor that goes silent is
// reported expired, which the core loop treats as fatal.
//
// An optional external pat forwards proof of the loop's own liveness
// to an OS-level watchdog (systemd) once per healthy sweep.
//
// Thread Safety:
//   - NOT safe for concurrent use. Owned by the proactor core loop;
//     off-loop components pat by posting KindWatchdogPat events.
type WatchdogManager struct {
	defaultTimeout time.Duration
	actors         map[string]*watchedActor
	order          []string
	externalPat    func()
}

type watchedActor struct {
	timeout time.Duration
	lastPat time.Time
}

// NewWatchdogManager creates a manager with the given default actor
// timeout. externalPat may be nil when not running as a managed service.
func NewWatchdogManager(defaultTimeout time.Duration, externalPat func()) *WatchdogManager {
	return &WatchdogManager{
		defaultTimeout: defaultTimeout,
		actors:         make(map[string]*watchedActor),
		externalPat:    externalPat,
	}
}

// Register begins monitoring an actor. A non-positive timeout selects
// the default. Registration counts as the first pat, so a component is
// never expired before it had a full timeout to report in.
func (w *WatchdogManager) Register(name string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = w.defaultTimeout
	}
	if _, exists := w.actors[name]; !exists {
		w.order = append(w.order, name)
	}
	w.actors[name] = &watchedActor{timeout: timeout, lastPat: time.Now()}
}

// Unregister stops monitoring an actor. Used when a component shuts
// down cleanly ahead of the loop.
func (w *WatchdogManager) Unregister(name string) {
	if _, exists := w.actors[name]; !exists {
		return
	}
	delete(w.actors, name)
	for i, n := range w.order {
		if n == name {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// Pat records a liveness heartbeat. Pats from unregistered actors are
// ignored; a component must be registered to be trusted.
func (w *WatchdogManager) Pat(name string) {
	if a, ok := w.actors[name]; ok {
		a.lastPat = time.Now()
	}
}

// Check sweeps the liveness table against now and returns the names of
// expired actors, in registration order. On a fully healthy sweep the
// external watchdog is patted; an unhealthy sweep withholds the pat so
// the OS-level watchdog also sees the failure.
func (w *WatchdogManager) Check(now time.Time) []string {
	var expired []string
	for _, name := range w.order {
		a := w.actors[name]
		if now.Sub(a.lastPat) > a.timeout {
			expired = append(expired, name)
		}
	}
	if len(expired) == 0 && w.externalPat != nil {
		w.externalPat()
	}
	return expired
}

// ActorStatus is the diagnostics view of one monitored actor.
type ActorStatus struct {
	Name    string        `json:"name"`
	Timeout time.Duration `json:"timeout"`
	LastPat time.Time     `json:"last_pat"`
}

// Actors returns the current liveness table sorted by name. Safe to
// hand off the loop; all contained data is copied.
func (w *WatchdogManager) Actors() []ActorStatus {
	out := make([]ActorStatus, 0, len(w.actors))
	for name, a := range w.actors {
		out = append(out, ActorStatus{Name: name, Timeout: a.timeout, LastPat: a.lastPat})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
