package link

import (
	"testing"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/message"
	"github.com/oakfield-systems/edgelink-core/internal/persister"
)

// fakeTimer is one scheduled timer in a fakeTimers manager.
type fakeTimer struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// fakeTimers is a TimerManager with manual firing control.
type fakeTimers struct {
	timers []*fakeTimer
}

func (f *fakeTimers) StartTimer(delay time.Duration, fn func()) TimerHandle {
	t := &fakeTimer{delay: delay, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) CancelTimer(handle TimerHandle) {
	if t, ok := handle.(*fakeTimer); ok {
		t.cancelled = true
	}
}

// fire runs a timer's callback in place, like the core loop would.
// It deliberately fires cancelled timers too: callbacks must tolerate
// firing after cancellation.
func (f *fakeTimers) fire(t *fakeTimer) {
	t.fired = true
	t.fn()
}

// pending returns timers that are neither cancelled nor fired.
func (f *fakeTimers) pending() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range f.timers {
		if !t.cancelled && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fakeClient records publishes and exposes them to tests.
type fakeClient struct {
	started    bool
	stopped    bool
	published  []publishedMessage
	publishErr error
}

type publishedMessage struct {
	topic string
	wire  []byte
}

func (c *fakeClient) Start() { c.started = true }
func (c *fakeClient) Stop()  { c.stopped = true }

func (c *fakeClient) Publish(topic string, payload []byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMessage{topic: topic, wire: payload})
	return nil
}

// testLogger discards everything.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// linksFixture bundles a Links façade with its collaborators.
type linksFixture struct {
	links  *Links
	link   *Link
	client *fakeClient
	timers *fakeTimers
	store  *persister.TimedRollingFilePersister
	events []message.Event
}

// newLinksFixture builds a Links façade with one registered upstream
// link named "parent" peering with "aggregator-1".
func newLinksFixture(t *testing.T) *linksFixture {
	t.Helper()

	store, err := persister.New(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("persister.New() error = %v", err)
	}

	f := &linksFixture{
		client: &fakeClient{},
		timers: &fakeTimers{},
		store:  store,
	}
	f.links = NewLinks(Options{
		NodeName:       "scada-12",
		AckTimeout:     5 * time.Second,
		ReuploadWindow: 5,
		Store:          store,
		Timers:         f.timers,
		Logger:         testLogger{},
		OnEvent:        func(ev message.Event) { f.events = append(f.events, ev) },
	})

	link, err := f.links.Register("parent", "aggregator-1", true, true, f.client)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	f.link = link
	return f
}

// connectToActive drives the fixture's link from connecting to active.
// The caller must have called links.Start() already.
func (f *linksFixture) connectToActive(t *testing.T) {
	t.Helper()
	if err := f.links.ProcessMQTTConnected("parent"); err != nil {
		t.Fatalf("ProcessMQTTConnected() error = %v", err)
	}
	if err := f.links.ProcessMQTTSuback("parent", 0); err != nil {
		t.Fatalf("ProcessMQTTSuback() error = %v", err)
	}
	f.peerMessage(t, pingEnvelope(t))
	if f.link.State() != StateActive {
		t.Fatalf("link state = %q after handshake, want active", f.link.State())
	}
}

// peerMessage feeds an envelope from the peer into the links façade.
func (f *linksFixture) peerMessage(t *testing.T, env message.Envelope) {
	t.Helper()
	wire, err := message.Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	topic := message.Topics{}.ForEnvelope(env)
	if err := f.links.ProcessMessage("parent", topic, wire); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
}

// ackFromPeer feeds a peer ack for a message id.
func (f *linksFixture) ackFromPeer(t *testing.T, messageID string) {
	t.Helper()
	ack, err := message.NewAck("aggregator-1", "scada-12", messageID)
	if err != nil {
		t.Fatalf("NewAck() error = %v", err)
	}
	f.peerMessage(t, ack)
}

// pingEnvelope builds a plain peer message that needs no ack.
func pingEnvelope(t *testing.T) message.Envelope {
	t.Helper()
	return message.NewEnvelope(message.TypePing, "aggregator-1", "scada-12", false, nil)
}

// decodePublished decodes the fixture client's captured publishes.
func (f *linksFixture) decodePublished(t *testing.T) []message.Envelope {
	t.Helper()
	envs := make([]message.Envelope, 0, len(f.client.published))
	for _, pub := range f.client.published {
		env, err := message.Decode(pub.wire)
		if err != nil {
			t.Fatalf("Decode(published) error = %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

// eventKinds filters captured events by kind.
func (f *linksFixture) eventKinds(kind message.EventKind) []message.Event {
	var out []message.Event
	for _, ev := range f.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
