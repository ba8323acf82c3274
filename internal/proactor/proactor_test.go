package proactor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/link"
	"github.com/oakfield-systems/edgelink-core/internal/message"
	"github.com/oakfield-systems/edgelink-core/internal/persister"
)

type nopClient struct{}

func (nopClient) Start()                       {}
func (nopClient) Stop()                        {}
func (nopClient) Publish(string, []byte) error { return nil }

// newTestProactor wires a proactor to a real persister and one upstream
// link named "parent" backed by a no-op MQTT client.
func newTestProactor(t *testing.T, opts Options) (*Proactor, *link.Links, *persister.TimedRollingFilePersister) {
	t.Helper()

	if opts.NodeName == "" {
		opts.NodeName = "scada-12"
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	p := New(opts)

	store, err := persister.New(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("persister.New() error = %v", err)
	}
	links := link.NewLinks(link.Options{
		NodeName: opts.NodeName,
		Store:    store,
		Timers:   p.Timers(),
		Logger:   nopLogger{},
	})
	if _, err := links.Register("parent", "aggregator-1", true, true, nopClient{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	p.BindLinks(links)
	return p, links, store
}

// runProactor starts Run on its own goroutine and returns the result
// channel.
func runProactor(p *Proactor) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run() }()
	return errCh
}

// waitRun collects Run's result with a bounded wait.
func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

// awaitLinkState polls the loop until the first link reaches want.
func awaitLinkState(t *testing.T, p *Proactor, want link.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snaps, err := p.LinkSnapshots()
		if err == nil && len(snaps) == 1 && snaps[0].State == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("link never reached %q (last: %+v, err: %v)", want, snaps, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ----------------------------------------------------------------------------
// Loop Lifecycle
// ----------------------------------------------------------------------------

func TestRunSerializesMQTTEvents(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	// Events arrive from "another thread", exactly as an MQTT client
	// goroutine would deliver them.
	p.OnMQTTConnected("parent")
	p.OnMQTTSuback("parent", 0)
	awaitLinkState(t, p, link.StateAwaitingPeer)

	env := message.NewEnvelope(message.TypePing, "aggregator-1", "scada-12", false, nil)
	wire, err := message.Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	p.OnMQTTMessage("parent", message.Topics{}.ForEnvelope(env), wire)
	awaitLinkState(t, p, link.StateActive)

	stats, err := p.StatsSnapshot()
	if err != nil {
		t.Fatalf("StatsSnapshot() error = %v", err)
	}
	if stats.EventsProcessed[KindMQTTConnected] != 1 {
		t.Errorf("processed %d connect events, want 1", stats.EventsProcessed[KindMQTTConnected])
	}
	if stats.EventsProcessed[KindMQTTSuback] != 1 {
		t.Errorf("processed %d suback events, want 1", stats.EventsProcessed[KindMQTTSuback])
	}
	if stats.EventsProcessed[KindMQTTMessage] != 1 {
		t.Errorf("processed %d message events, want 1", stats.EventsProcessed[KindMQTTMessage])
	}

	store, err := p.StoreSnapshot()
	if err != nil {
		t.Fatalf("StoreSnapshot() error = %v", err)
	}
	if store.MaxBytes <= 0 {
		t.Errorf("StoreSnapshot().MaxBytes = %d, want positive", store.MaxBytes)
	}

	p.Shutdown("test complete")
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run() = %v, want nil for orderly shutdown", err)
	}
}

func TestShutdownPersistsShutdownEvent(t *testing.T) {
	p, links, store := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	p.Shutdown("operator request")
	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	// The loop is stopped; reading the store directly is safe now.
	found := false
	for _, uid := range store.PendingUIDs() {
		body, problems := store.Retrieve(uid)
		if problems.HasErrors() {
			t.Fatalf("Retrieve(%q) error = %v", uid, problems)
		}
		ev, err := message.DecodeEvent(body)
		if err != nil {
			t.Fatalf("DecodeEvent() error = %v", err)
		}
		if ev.Kind == message.KindShutdown {
			found = true
			if reason, _ := ev.Details["reason"].(string); reason != "operator request" {
				t.Errorf("shutdown reason = %q", reason)
			}
		}
	}
	if !found {
		t.Error("no shutdown event persisted")
	}
}

func TestRunTwice(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	if err := p.Run(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}

	p.Shutdown("done")
	waitRun(t, errCh)
}

func TestPostAfterStop(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)
	p.Shutdown("done")
	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if p.Post(Event{Kind: KindWatchdogPat, Actor: "late"}) {
		t.Error("Post() accepted an event after stop")
	}
	if err := p.Do(func() {}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Do() after stop = %v, want ErrNotRunning", err)
	}
	if _, err := p.LinkSnapshots(); err == nil {
		t.Error("LinkSnapshots() succeeded after stop")
	}
}

// ----------------------------------------------------------------------------
// Timers
// ----------------------------------------------------------------------------

func TestTimerFiresOnLoop(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)
	defer func() { p.Shutdown("done"); waitRun(t, errCh) }()

	fired := make(chan struct{})
	p.Timers().StartTimer(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer callback never ran")
	}

	stats, err := p.StatsSnapshot()
	if err != nil {
		t.Fatalf("StatsSnapshot() error = %v", err)
	}
	if stats.TimersFired < 1 {
		t.Errorf("TimersFired = %d, want at least 1", stats.TimersFired)
	}
}

func TestCancelledTimerDoesNotRun(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)
	defer func() { p.Shutdown("done"); waitRun(t, errCh) }()

	var ran atomic.Bool
	h := p.Timers().StartTimer(50*time.Millisecond, func() { ran.Store(true) })
	p.Timers().CancelTimer(h)

	time.Sleep(150 * time.Millisecond)
	if ran.Load() {
		t.Error("cancelled timer's callback ran")
	}
}

// ----------------------------------------------------------------------------
// Watchdog Integration
// ----------------------------------------------------------------------------

func TestWatchdogExpiryIsFatal(t *testing.T) {
	p, links, store := newTestProactor(t, Options{
		WatchdogCheckInterval:  20 * time.Millisecond,
		WatchdogDefaultTimeout: 10 * time.Millisecond,
	})
	p.Watchdog().Register("silent-actor", 0)
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	err := waitRun(t, errCh)
	if !errors.Is(err, ErrWatchdogExpired) {
		t.Fatalf("Run() = %v, want ErrWatchdogExpired", err)
	}

	// The expiry is reported as data before the process stops.
	foundProblem := false
	for _, uid := range store.PendingUIDs() {
		body, problems := store.Retrieve(uid)
		if problems.HasErrors() {
			continue
		}
		ev, decErr := message.DecodeEvent(body)
		if decErr != nil {
			continue
		}
		if ev.Kind == message.KindProblem {
			if summary, _ := ev.Details["summary"].(string); summary == "watchdog expiry" {
				foundProblem = true
			}
		}
	}
	if !foundProblem {
		t.Error("watchdog expiry did not persist a problem event")
	}
}

func TestWatchdogExpiryExitsUnderSaturatedQueue(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{
		QueueSize:              1,
		WatchdogCheckInterval:  20 * time.Millisecond,
		WatchdogDefaultTimeout: 10 * time.Millisecond,
	})
	p.Watchdog().Register("silent-actor", 0)
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	// Saturate the single-slot queue from several producer goroutines,
	// the regime where actors miss pats in the first place. The fatal
	// exit must not depend on a free queue slot.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					p.Pat("noisy-actor")
				}
			}
		}()
	}

	err := waitRun(t, errCh)
	close(stop)
	wg.Wait()
	if !errors.Is(err, ErrWatchdogExpired) {
		t.Fatalf("Run() = %v, want ErrWatchdogExpired", err)
	}
}

func TestWatchdogPatKeepsActorAlive(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{
		WatchdogCheckInterval:  10 * time.Millisecond,
		WatchdogDefaultTimeout: 40 * time.Millisecond,
	})
	p.Watchdog().Register("chatty-actor", 0)
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	// Pat from off the loop for several timeout periods.
	stop := time.After(200 * time.Millisecond)
patting:
	for {
		select {
		case <-stop:
			break patting
		case err := <-errCh:
			t.Fatalf("Run() stopped while actor was patting: %v", err)
		case <-time.After(10 * time.Millisecond):
			p.Pat("chatty-actor")
		}
	}

	p.Shutdown("done")
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestExternalPatOnHealthySweep(t *testing.T) {
	var pats atomic.Int64
	p, links, _ := newTestProactor(t, Options{
		WatchdogCheckInterval: 10 * time.Millisecond,
		ExternalPat:           func() { pats.Add(1) },
	})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	deadline := time.Now().Add(2 * time.Second)
	for pats.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("external pat never invoked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Shutdown("done")
	waitRun(t, errCh)
}

func TestBlockedExternalPatDoesNotStallLoop(t *testing.T) {
	release := make(chan struct{})
	var pats atomic.Int64
	p, links, _ := newTestProactor(t, Options{
		WatchdogCheckInterval: 10 * time.Millisecond,
		ExternalPat: func() {
			pats.Add(1)
			<-release
		},
	})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	deadline := time.Now().Add(2 * time.Second)
	for pats.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("external pat never invoked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The pat hook is wedged on the runner thread; the loop itself must
	// keep answering.
	if _, err := p.StatsSnapshot(); err != nil {
		t.Fatalf("StatsSnapshot() error = %v while external pat blocked", err)
	}

	close(release)
	p.Shutdown("done")
	waitRun(t, errCh)
}

// ----------------------------------------------------------------------------
// Fatal Dispatch
// ----------------------------------------------------------------------------

func TestHandlerPanicStopsLoop(t *testing.T) {
	p, links, _ := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	if err := p.Do(func() { panic("wedged handler") }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	err := waitRun(t, errCh)
	if !errors.Is(err, ErrDispatchPanic) {
		t.Fatalf("Run() = %v, want ErrDispatchPanic", err)
	}
}

// ----------------------------------------------------------------------------
// Off-Loop Event Generation
// ----------------------------------------------------------------------------

func TestGenerateEventFromOffLoop(t *testing.T) {
	p, links, store := newTestProactor(t, Options{})
	if err := links.Start(); err != nil {
		t.Fatalf("links.Start() error = %v", err)
	}
	errCh := runProactor(p)

	ev := message.NewEvent("meter.reading", "scada-12", map[string]any{"kwh": 3.3})
	if err := p.GenerateEvent(ev); err != nil {
		t.Fatalf("GenerateEvent() error = %v", err)
	}

	// The queue is FIFO: a read posted after GenerateEvent observes the
	// durable write.
	readDone := make(chan bool, 1)
	if err := p.Do(func() { readDone <- store.IsPending(ev.UID) }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	select {
	case pending := <-readDone:
		if !pending {
			t.Error("generated event not pending in the persister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop never ran the read")
	}

	p.Shutdown("done")
	waitRun(t, errCh)
}
