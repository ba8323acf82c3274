package proactor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/link"
	"github.com/oakfield-systems/edgelink-core/internal/message"
)

// Logger defines the logging interface for the proactor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Proactor.
type Options struct {
	// NodeName is this node's name, stamped on loop-generated events.
	NodeName string

	// QueueSize is the core queue's capacity. Default 256.
	QueueSize int

	// WatchdogCheckInterval is how often the liveness sweep runs.
	// Default 10s.
	WatchdogCheckInterval time.Duration

	// WatchdogDefaultTimeout is the default actor liveness timeout.
	// Default 60s.
	WatchdogDefaultTimeout time.Duration

	// ExternalPat forwards loop liveness to an OS-level watchdog on
	// every healthy sweep. It is executed on the io task runner, never
	// on the loop, so it may block. May be nil.
	ExternalPat func()

	// Logger receives loop logging. Required.
	Logger Logger
}

const (
	defaultQueueSize         = 256
	defaultCheckInterval     = 10 * time.Second
	defaultWatchdogTimeout   = 60 * time.Second
	offLoopReadTimeout       = 5 * time.Second
	taskRunnerStopWait       = 5 * time.Second
	shutdownDrainGracePeriod = 100 * time.Millisecond
)

// Proactor is the single-threaded core message loop. Every source of
// concurrency in the system (MQTT client threads, timers, the I/O task
// runner, watchdog pats) funnels into one multi-producer queue whose
// sole consumer is Run. All correctness-critical state (link machines,
// ack tables, reupload trackers, the persister index) is mutated only
// inside Run's dispatch, so none of it is locked.
//
// Thread Safety:
//   - Post, Pat, Do, Shutdown, the On* callbacks and the *Snapshot
//     accessors are safe for concurrent use from any goroutine.
//   - Everything else belongs to the loop.
type Proactor struct {
	nodeName      string
	queue         chan Event
	done          chan struct{}
	running       atomic.Bool
	checkInterval time.Duration

	links    *link.Links
	watchdog *WatchdogManager
	tasks    *TaskRunner
	logger   Logger
	stats    *Stats

	handlers map[EventKind]func(Event) error

	// set by a shutdown event, read by Run's exit path
	fatalErr error
}

// New creates a proactor. Bind the link façade with BindLinks before
// calling Run; the two are constructed in sequence because the links
// need the proactor's timer manager.
func New(opts Options) *Proactor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WatchdogCheckInterval <= 0 {
		opts.WatchdogCheckInterval = defaultCheckInterval
	}
	if opts.WatchdogDefaultTimeout <= 0 {
		opts.WatchdogDefaultTimeout = defaultWatchdogTimeout
	}

	p := &Proactor{
		nodeName:      opts.NodeName,
		queue:         make(chan Event, opts.QueueSize),
		done:          make(chan struct{}),
		checkInterval: opts.WatchdogCheckInterval,
		logger:        opts.Logger,
		stats:         newStats(),
	}
	p.tasks = newTaskRunner(p.Post, opts.Logger)

	// The external pat may block (systemd-notify is a subprocess), so
	// the healthy-sweep hook hands it to the io task runner instead of
	// running it on the loop. A full task queue drops the pat; the next
	// healthy sweep sends another.
	externalPat := opts.ExternalPat
	if opts.ExternalPat != nil {
		externalPat = func() {
			err := p.tasks.Submit("external-watchdog-pat", func(context.Context) (any, error) {
				opts.ExternalPat()
				return nil, nil
			}, nil)
			if err != nil {
				p.logger.Warn("external watchdog pat not queued", "error", err)
			}
		}
	}
	p.watchdog = NewWatchdogManager(opts.WatchdogDefaultTimeout, externalPat)
	p.handlers = map[EventKind]func(Event) error{
		KindMQTTConnected:     func(ev Event) error { return p.links.ProcessMQTTConnected(ev.Link) },
		KindMQTTConnectFailed: func(ev Event) error { return p.links.ProcessMQTTConnectFailed(ev.Link) },
		KindMQTTDisconnected:  func(ev Event) error { return p.links.ProcessMQTTDisconnected(ev.Link) },
		KindMQTTSuback:        func(ev Event) error { return p.links.ProcessMQTTSuback(ev.Link, ev.PendingSubs) },
		KindMQTTMessage:       func(ev Event) error { return p.links.ProcessMessage(ev.Link, ev.Topic, ev.Payload) },
		KindTimerFired:        p.handleDeferred,
		KindIOResult:          p.handleDeferred,
		KindFunc:              p.handleDeferred,
		KindWatchdogPat:       p.handlePat,
	}
	return p
}

// BindLinks attaches the link façade. Must be called exactly once,
// before Run.
func (p *Proactor) BindLinks(links *link.Links) {
	p.links = links
}

// Watchdog returns the liveness manager for actor registration during
// wiring. Off-loop registration is only safe before Run.
func (p *Proactor) Watchdog() *WatchdogManager {
	return p.watchdog
}

// IOTasks returns the blocking-work runner.
func (p *Proactor) IOTasks() *TaskRunner {
	return p.tasks
}

// Post enqueues an event for the core loop. Safe from any goroutine.
// Returns false once the loop has stopped; producers treat that as
// "shutting down" and drop the event.
func (p *Proactor) Post(ev Event) bool {
	if ev.Enqueued.IsZero() {
		ev.Enqueued = time.Now()
	}
	select {
	case <-p.done:
		return false
	case p.queue <- ev:
		return true
	}
}

// OnMQTTConnected marshals a broker connection onto the loop.
func (p *Proactor) OnMQTTConnected(linkName string) {
	p.Post(Event{Kind: KindMQTTConnected, Link: linkName})
}

// OnMQTTConnectFailed marshals a failed connection attempt onto the loop.
func (p *Proactor) OnMQTTConnectFailed(linkName string) {
	p.Post(Event{Kind: KindMQTTConnectFailed, Link: linkName})
}

// OnMQTTDisconnected marshals a lost connection onto the loop.
func (p *Proactor) OnMQTTDisconnected(linkName string) {
	p.Post(Event{Kind: KindMQTTDisconnected, Link: linkName})
}

// OnMQTTSuback marshals subscription-acknowledgment progress onto the
// loop. pendingSubs is the number of subscriptions still unconfirmed.
func (p *Proactor) OnMQTTSuback(linkName string, pendingSubs int) {
	p.Post(Event{Kind: KindMQTTSuback, Link: linkName, PendingSubs: pendingSubs})
}

// OnMQTTMessage marshals inbound broker bytes onto the loop. The
// payload must be owned by the caller at the point of the call and
// never touched afterwards.
func (p *Proactor) OnMQTTMessage(linkName, topic string, payload []byte) {
	p.Post(Event{Kind: KindMQTTMessage, Link: linkName, Topic: topic, Payload: payload})
}

// Pat records a liveness heartbeat for a monitored actor.
func (p *Proactor) Pat(actor string) {
	p.Post(Event{Kind: KindWatchdogPat, Actor: actor})
}

// Do runs fn on the core loop. Safe from any goroutine; returns
// ErrNotRunning once the loop has stopped.
func (p *Proactor) Do(fn func()) error {
	if !p.Post(Event{Kind: KindFunc, Fn: fn}) {
		return ErrNotRunning
	}
	return nil
}

// Shutdown requests an orderly stop. The loop finishes the current
// handler, generates a shutdown event, stops the MQTT clients and the
// task runner, then Run returns.
func (p *Proactor) Shutdown(reason string) {
	p.Post(Event{Kind: KindShutdown, Reason: reason})
}

// GenerateEvent persists and forwards a domain event from off the loop.
// The durable write happens on the loop; this returns once the event is
// queued, not once it is persisted.
func (p *Proactor) GenerateEvent(ev message.Event) error {
	return p.Do(func() {
		if err := p.links.GenerateEvent(ev); err != nil {
			p.logger.Error("generating event failed", "uid", ev.UID, "kind", ev.Kind, "error", err)
		}
	})
}

// Run consumes the queue until a shutdown event arrives. It returns nil
// for an orderly stop and the fatal cause for watchdog- or panic-driven
// stops. Call at most once.
func (p *Proactor) Run() error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if p.links == nil {
		return fmt.Errorf("proactor: Run before BindLinks")
	}

	p.stats.StartedAt = time.Now().UTC()
	p.scheduleWatchdogCheck()
	p.logger.Info("core loop started", "queue_size", cap(p.queue))

	var shutdown Event
	for {
		ev := <-p.queue
		if ev.Kind == KindShutdown {
			shutdown = ev
			break
		}
		if stop := p.step(ev); stop {
			shutdown = Event{Kind: KindShutdown, Reason: p.fatalErr.Error(), Fatal: true}
			break
		}
	}

	p.finish(shutdown)
	if shutdown.Fatal {
		if p.fatalErr != nil {
			return p.fatalErr
		}
		return fmt.Errorf("proactor: fatal shutdown: %s", shutdown.Reason)
	}
	return nil
}

// step dispatches one event. Fatal conditions (a handler panic, a
// watchdog expiry flagged by the sweep) flip the loop into its fatal
// exit path, which still reports the cause before the process stops.
func (p *Proactor) step(ev Event) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			p.fatalErr = fmt.Errorf("%w: kind %q: %v", ErrDispatchPanic, ev.Kind, r)
			p.logger.Error("panic in event handler", "kind", ev.Kind, "panic", r)
			stop = true
		}
	}()

	if depth := len(p.queue) + 1; depth > p.stats.QueueHighWater {
		p.stats.QueueHighWater = depth
	}
	p.stats.EventsProcessed[ev.Kind]++

	handler, ok := p.handlers[ev.Kind]
	if !ok {
		p.logger.Warn("dropping event of unknown kind", "kind", ev.Kind)
		return false
	}
	if err := handler(ev); err != nil {
		// Handler errors are operational noise (stray inputs after a
		// reconnect, unknown links), never loop-fatal.
		p.logger.Warn("event handler reported error", "kind", ev.Kind, "link", ev.Link, "error", err)
	}
	p.stats.LastDispatch = time.Now().UTC()
	return p.fatalErr != nil
}

// finish runs the orderly exit path shared by every stop: report the
// stop as a persisted event, stop the collaborators, release producers.
func (p *Proactor) finish(shutdown Event) {
	p.logger.Info("core loop stopping", "reason", shutdown.Reason, "fatal", shutdown.Fatal)

	ev := message.NewEvent(message.KindShutdown, p.nodeName, map[string]any{
		"reason": shutdown.Reason,
		"fatal":  shutdown.Fatal,
	})
	if err := p.links.GenerateEvent(ev); err != nil {
		p.logger.Error("persisting shutdown event failed", "error", err)
	}

	p.links.Stop()
	p.tasks.Stop(taskRunnerStopWait)

	// Give in-flight producers a moment, then cut them off. Anything
	// already durably persisted survives the restart regardless.
	time.Sleep(shutdownDrainGracePeriod)
	close(p.done)
}

// handleDeferred runs a timer, io-result or func event's closure.
func (p *Proactor) handleDeferred(ev Event) error {
	if ev.Fn == nil {
		return fmt.Errorf("proactor: %s event without closure", ev.Kind)
	}
	if ev.Kind == KindTimerFired {
		p.stats.TimersFired++
	}
	ev.Fn()
	return nil
}

// handlePat forwards a heartbeat to the liveness table.
func (p *Proactor) handlePat(ev Event) error {
	p.watchdog.Pat(ev.Actor)
	return nil
}

// scheduleWatchdogCheck arms the next liveness sweep.
func (p *Proactor) scheduleWatchdogCheck() {
	p.Timers().StartTimer(p.checkInterval, p.runWatchdogCheck)
}

// runWatchdogCheck sweeps the liveness table on the loop. Any expired
// actor is fatal: a component that cannot even heartbeat cannot be
// trusted with delivery guarantees, so the process restarts under its
// supervisor.
func (p *Proactor) runWatchdogCheck() {
	p.stats.WatchdogChecks++
	expired := p.watchdog.Check(time.Now())
	if len(expired) == 0 {
		p.scheduleWatchdogCheck()
		return
	}

	// Already on the loop, so the fatal cause is flagged directly
	// rather than posted: a send into the queue this goroutine consumes
	// would deadlock whenever producers have it saturated. step picks
	// the flag up as soon as this handler returns.
	p.fatalErr = fmt.Errorf("%w: %v", ErrWatchdogExpired, expired)
	p.logger.Error("watchdog expiry", "actors", expired)
	if err := p.links.GenerateEvent(message.NewProblemEvent(p.nodeName, "watchdog expiry", map[string]any{
		"actors": expired,
	})); err != nil {
		p.logger.Error("persisting watchdog problem event failed", "error", err)
	}
}

// LinkSnapshots returns the link diagnostics view, produced on the
// loop so no lock is needed. Returns ErrNotRunning when the loop is
// stopped and a timeout error when it is wedged.
func (p *Proactor) LinkSnapshots() ([]link.Snapshot, error) {
	var snaps []link.Snapshot
	err := p.readOnLoop(func() { snaps = p.links.Snapshots() })
	return snaps, err
}

// StatsSnapshot returns the loop counters, produced on the loop.
func (p *Proactor) StatsSnapshot() (StatsSnapshot, error) {
	var snap StatsSnapshot
	err := p.readOnLoop(func() { snap = p.stats.snapshot(len(p.queue)) })
	return snap, err
}

// StoreSnapshot returns the event store's occupancy, produced on the
// loop.
func (p *Proactor) StoreSnapshot() (link.StoreSnapshot, error) {
	var snap link.StoreSnapshot
	err := p.readOnLoop(func() { snap = p.links.StoreSnapshot() })
	return snap, err
}

// WatchdogActors returns the liveness table, produced on the loop.
func (p *Proactor) WatchdogActors() ([]ActorStatus, error) {
	var actors []ActorStatus
	err := p.readOnLoop(func() { actors = p.watchdog.Actors() })
	return actors, err
}

// readOnLoop runs fn on the loop and waits for it with a bounded
// timeout, so a wedged loop degrades diagnostics instead of hanging
// their callers.
func (p *Proactor) readOnLoop(fn func()) error {
	ready := make(chan struct{})
	if err := p.Do(func() {
		fn()
		close(ready)
	}); err != nil {
		return err
	}
	select {
	case <-ready:
		return nil
	case <-p.done:
		return ErrNotRunning
	case <-time.After(offLoopReadTimeout):
		return fmt.Errorf("proactor: loop did not answer within %v", offLoopReadTimeout)
	}
}
