package link

import (
	"fmt"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/message"
	"github.com/oakfield-systems/edgelink-core/internal/persister"
)

// MQTTClient is the narrow surface Links needs from one broker
// connection. Implementations run their I/O on their own OS thread and
// report connectivity changes through the proactor queue, never
// directly into Links.
type MQTTClient interface {
	// Start begins connecting (with the client's own retry backoff).
	Start()

	// Stop disconnects and joins the client's thread with a bounded wait.
	Stop()

	// Publish sends a payload. Returns an error when the client is not
	// currently able to publish; delivery is still only confirmed by a
	// peer-level ack.
	Publish(topic string, payload []byte) error
}

// Logger defines the logging interface for the link layer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Link is one named logical connection to a peer over one MQTT client.
type Link struct {
	name       string
	peer       string
	upstream   bool
	downstream bool

	client   MQTTClient
	state    *LinkState
	stats    *LinkStats
	reupload *ReuploadTracker
}

// Name returns the link's name.
func (l *Link) Name() string { return l.name }

// Peer returns the remote endpoint's node name.
func (l *Link) Peer() string { return l.peer }

// State returns the link's current machine state.
func (l *Link) State() State { return l.state.State() }

// Options configures a Links façade.
type Options struct {
	// NodeName is this node's name, the Src on every outbound envelope.
	NodeName string

	// AckTimeout is how long to wait for a peer ack before the timer
	// fires. Default 5s.
	AckTimeout time.Duration

	// ReuploadWindow is the sliding-window size for event reupload.
	// Default 5.
	ReuploadWindow int

	// Store is the durable event persister, the source of truth for
	// at-least-once delivery.
	Store *persister.TimedRollingFilePersister

	// Timers schedules ack timeouts on the core loop.
	Timers TimerManager

	// Logger receives link-layer logging. Required.
	Logger Logger

	// OnEvent, if set, observes every generated event after it is
	// persisted (audit trail, stats sinks, live feeds).
	OnEvent func(message.Event)

	// OnInbound, if set, receives decoded non-ack envelopes from peers
	// after link-state bookkeeping and ack-back handling.
	OnInbound func(linkName string, env message.Envelope)
}

const (
	defaultAckTimeout     = 5 * time.Second
	defaultReuploadWindow = 5
)

// Links is the façade composing the event persister, ack manager, link
// state machines, reupload trackers, and the MQTT client pool. It is
// the single owner of all link correctness state.
//
// Thread Safety:
//   - NOT safe for concurrent use. Every method runs on the proactor
//     core loop; MQTT client threads reach it only via queue messages.
type Links struct {
	nodeName       string
	ackTimeout     time.Duration
	reuploadWindow int

	links map[string]*Link
	order []string

	upstreamName   string
	downstreamName string

	store  *persister.TimedRollingFilePersister
	acks   *AckManager
	topics message.Topics
	logger Logger

	onEvent   func(message.Event)
	onInbound func(string, message.Envelope)
}

// NewLinks creates the façade. Register links before Start.
func NewLinks(opts Options) *Links {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	if opts.ReuploadWindow <= 0 {
		opts.ReuploadWindow = defaultReuploadWindow
	}

	ls := &Links{
		nodeName:       opts.NodeName,
		ackTimeout:     opts.AckTimeout,
		reuploadWindow: opts.ReuploadWindow,
		links:          make(map[string]*Link),
		store:          opts.Store,
		logger:         opts.Logger,
		onEvent:        opts.OnEvent,
		onInbound:      opts.OnInbound,
	}
	ls.acks = NewAckManager(opts.Timers, ls.handleAckTimeout)
	return ls
}

// Register adds a link to the pool. Link names must be unique; at most
// one link may be upstream and at most one downstream.
func (ls *Links) Register(name, peer string, upstream, downstream bool, client MQTTClient) (*Link, error) {
	if _, exists := ls.links[name]; exists {
		return nil, fmt.Errorf("link %q already registered", name)
	}
	if upstream && ls.upstreamName != "" {
		return nil, fmt.Errorf("link %q: upstream already held by %q", name, ls.upstreamName)
	}
	if downstream && ls.downstreamName != "" {
		return nil, fmt.Errorf("link %q: downstream already held by %q", name, ls.downstreamName)
	}

	l := &Link{
		name:       name,
		peer:       peer,
		upstream:   upstream,
		downstream: downstream,
		client:     client,
		state:      NewLinkState(name),
		stats:      NewLinkStats(),
		reupload:   NewReuploadTracker(ls.reuploadWindow),
	}
	ls.links[name] = l
	ls.order = append(ls.order, name)
	if upstream {
		ls.upstreamName = name
	}
	if downstream {
		ls.downstreamName = name
	}
	return l, nil
}

// Get returns a registered link.
func (ls *Links) Get(name string) (*Link, error) {
	l, ok := ls.links[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLink, name)
	}
	return l, nil
}

// Upstream returns the upstream link, or nil when none is configured.
func (ls *Links) Upstream() *Link {
	if ls.upstreamName == "" {
		return nil
	}
	return ls.links[ls.upstreamName]
}

// Start transitions every link out of not_started and starts its MQTT
// client.
func (ls *Links) Start() error {
	for _, name := range ls.order {
		l := ls.links[name]
		tr, err := l.state.Start()
		if err != nil {
			return err
		}
		l.stats.RecordTransition(tr)
		l.client.Start()
	}
	return nil
}

// Stop stops every MQTT client. Link and persister state is left as-is:
// the persister is the source of truth across restarts.
func (ls *Links) Stop() {
	for _, name := range ls.order {
		ls.links[name].client.Stop()
	}
}

// GenerateEvent persists an event, notifies observers, then attempts a
// best-effort immediate publish on the upstream link when it can send.
//
// Persistence is never skipped even if the publish succeeds: the peer
// ack, not the publish call, retires the persisted copy. When no
// upstream link is configured the event is cleared immediately after
// the durable write, leaving observers as its only consumers.
func (ls *Links) GenerateEvent(ev message.Event) error {
	body, err := message.EncodeEvent(ev)
	if err != nil {
		return err
	}

	problems := ls.store.Persist(ev.UID, body)
	if problems.HasErrors() {
		return problems
	}
	if problems.HasWarnings() {
		ls.logger.Warn("persist warnings", "uid", ev.UID, "warnings", problems.Warnings())
	}

	if ls.onEvent != nil {
		ls.onEvent(ev)
	}

	up := ls.Upstream()
	if up == nil {
		cleared := ls.store.Clear(ev.UID)
		if cleared.HasErrors() {
			return cleared
		}
		return nil
	}

	if up.state.ActiveForSend() {
		if pubErr := ls.publishEventBytes(up, ev.UID, body); pubErr != nil {
			// The event stays pending; reupload redelivers it.
			ls.logger.Warn("immediate publish failed, event remains pending",
				"link", up.name,
				"uid", ev.UID,
				"error", pubErr,
			)
		}
	}
	return nil
}

// ProcessMQTTConnected handles a broker connection on a link.
func (ls *Links) ProcessMQTTConnected(linkName string) error {
	l, err := ls.Get(linkName)
	if err != nil {
		return err
	}
	tr, err := l.state.ProcessMQTTConnected()
	if err != nil {
		return err
	}
	ls.recordTransition(l, tr, nil)
	return nil
}

// ProcessMQTTConnectFailed handles a failed connection attempt.
func (ls *Links) ProcessMQTTConnectFailed(linkName string) error {
	l, err := ls.Get(linkName)
	if err != nil {
		return err
	}
	tr, err := l.state.ProcessMQTTConnectFailed()
	if err != nil {
		return err
	}
	l.stats.RecordTransition(tr)
	return nil
}

// ProcessMQTTDisconnected handles a lost broker connection: every ack
// wait on the link is meaningless once the transport is gone, and any
// reupload session restarts from the persister on reconnection.
func (ls *Links) ProcessMQTTDisconnected(linkName string) error {
	l, err := ls.Get(linkName)
	if err != nil {
		return err
	}
	tr, err := l.state.ProcessMQTTDisconnected()
	if err != nil {
		return err
	}

	cancelled := ls.acks.CancelAckTimers(linkName)
	if len(cancelled) > 0 {
		ls.logger.Info("cancelled ack timers on disconnect",
			"link", linkName,
			"count", len(cancelled),
		)
	}
	l.reupload.Reset()

	ls.recordTransition(l, tr, nil)
	return nil
}

// ProcessMQTTSuback handles a subscription acknowledgment carrying the
// number of subscriptions still pending.
func (ls *Links) ProcessMQTTSuback(linkName string, pendingSubs int) error {
	l, err := ls.Get(linkName)
	if err != nil {
		return err
	}
	tr, err := l.state.ProcessMQTTSuback(pendingSubs)
	if err != nil {
		return err
	}
	ls.recordTransition(l, tr, map[string]any{"pending_subs": pendingSubs})
	return nil
}

// ProcessMessage handles raw inbound MQTT bytes on a link. Malformed
// payloads produce a problem event and are dropped; they never
// propagate as a failure of the loop.
func (ls *Links) ProcessMessage(linkName, topic string, wire []byte) error {
	l, err := ls.Get(linkName)
	if err != nil {
		return err
	}

	env, decErr := message.Decode(wire)
	if decErr != nil {
		ls.logger.Warn("dropping undecodable message", "link", linkName, "topic", topic, "error", decErr)
		return ls.GenerateEvent(message.NewProblemEvent(ls.nodeName, "undecodable message", map[string]any{
			"link":  linkName,
			"topic": topic,
			"error": decErr.Error(),
		}))
	}

	if env.Src != l.peer {
		ls.logger.Warn("dropping message from unexpected source",
			"link", linkName,
			"src", env.Src,
			"peer", l.peer,
		)
		return nil
	}

	l.stats.RecordRecv(string(env.Type))

	// Any message from the peer is evidence of peer liveness.
	if tr, trErr := l.state.ProcessMessageFromPeer(); trErr != nil {
		ls.logger.Warn("state machine rejected peer message input", "link", linkName, "error", trErr)
	} else {
		ls.recordTransition(l, tr, nil)
	}

	switch env.Type {
	case message.TypeAck:
		payload, ackErr := message.DecodeAckPayload(env.Payload)
		if ackErr != nil {
			ls.logger.Warn("dropping malformed ack", "link", linkName, "error", ackErr)
			return nil
		}
		ls.handleAck(l, payload.AckMessageID)
		return nil

	case message.TypeEvent, message.TypePing:
		// Ack back synchronously within this handler invocation.
		if env.AckRequired {
			if ackErr := ls.sendAck(l, env.MessageID); ackErr != nil {
				ls.logger.Warn("failed to ack inbound message", "link", linkName, "error", ackErr)
			}
		}
		if ls.onInbound != nil {
			ls.onInbound(linkName, env)
		}
		return nil

	default:
		ls.logger.Warn("dropping message of unknown type", "link", linkName, "type", env.Type)
		return nil
	}
}

// Snapshots returns a diagnostics view of every link, in registration
// order. Safe to hand off the loop; all contained data is copied.
func (ls *Links) Snapshots() []Snapshot {
	snaps := make([]Snapshot, 0, len(ls.order))
	for _, name := range ls.order {
		snaps = append(snaps, ls.links[name].snapshot())
	}
	return snaps
}

// NumPendingEvents returns the persister's pending count.
func (ls *Links) NumPendingEvents() int {
	return ls.store.NumPending()
}

// StoreSnapshot is a point-in-time view of the durable event store's
// occupancy.
type StoreSnapshot struct {
	PendingEvents int   `json:"pending_events"`
	CurrBytes     int64 `json:"curr_bytes"`
	MaxBytes      int64 `json:"max_bytes"`
}

// StoreSnapshot returns the event store's occupancy. Safe to hand off
// the loop.
func (ls *Links) StoreSnapshot() StoreSnapshot {
	return StoreSnapshot{
		PendingEvents: ls.store.NumPending(),
		CurrBytes:     ls.store.CurrBytes(),
		MaxBytes:      ls.store.MaxBytes(),
	}
}

// handleAck processes a peer acknowledgment for uid: the ack wait is
// cancelled, the persisted copy retired, and the reupload window slides.
func (ls *Links) handleAck(l *Link, uid string) {
	l.stats.AcksReceived++
	ls.acks.CancelAckTimer(l.name, uid)

	cleared := ls.store.Clear(uid)
	if cleared.HasErrors() {
		ls.logger.Error("clearing acked event failed", "link", l.name, "uid", uid, "error", cleared)
	}

	for _, next := range l.reupload.ProcessAck(uid) {
		ls.resendPersisted(l, next)
	}
}

// handleAckTimeout is the AckManager timeout callback. It demotes the
// link (active -> awaiting_peer) and reports the timeout as a problem
// event; the persisted copy stays pending for the next reupload.
func (ls *Links) handleAckTimeout(wait AckWaitInfo) {
	l, err := ls.Get(wait.LinkName)
	if err != nil {
		ls.logger.Error("ack timeout for unknown link", "link", wait.LinkName)
		return
	}

	l.stats.Timeouts++

	tr, trErr := l.state.ProcessAckTimeout()
	if trErr != nil {
		ls.logger.Warn("state machine rejected ack timeout input", "link", l.name, "error", trErr)
	} else {
		l.stats.RecordTransition(tr)
		if tr.Changed() {
			// Demoted: the peer is presumed stale. Any in-flight
			// reupload session is abandoned and rebuilt from the
			// persister when the peer comes back.
			l.reupload.Reset()
		}
	}

	if genErr := ls.GenerateEvent(message.NewProblemEvent(ls.nodeName, "ack timeout", map[string]any{
		"link":       l.name,
		"message_id": wait.MessageID,
	})); genErr != nil {
		ls.logger.Error("generating ack timeout problem event failed", "error", genErr)
	}
}

// recordTransition applies the bookkeeping every accepted transition
// shares: the stats log, the persisted comm event when the transition
// emits one, and reupload kickoff when the link becomes active.
func (ls *Links) recordTransition(l *Link, tr Transition, details map[string]any) {
	l.stats.RecordTransition(tr)

	if kind := tr.CommEventKind(); kind != "" {
		if details == nil {
			details = make(map[string]any, 2)
		}
		details["old"] = string(tr.Old)
		details["new"] = string(tr.New)
		if err := ls.GenerateEvent(message.NewCommEvent(kind, ls.nodeName, l.name, details)); err != nil {
			ls.logger.Error("generating comm event failed", "link", l.name, "kind", kind, "error", err)
		}
	}

	if tr.Changed() && tr.New == StateActive {
		ls.maybeStartReupload(l)
	}
}

// maybeStartReupload begins redelivery of persisted events on a link
// that just became active, unless a session is already running.
func (ls *Links) maybeStartReupload(l *Link) {
	if !l.upstream {
		return
	}
	if l.reupload.Reuploading() {
		return
	}

	pending := ls.store.PendingUIDs()
	if len(pending) == 0 {
		return
	}

	send := l.reupload.Start(pending)
	l.stats.ReuploadsStarted++
	ls.logger.Info("starting event reupload",
		"link", l.name,
		"pending", len(pending),
		"window", l.reupload.Window(),
	)
	for _, uid := range send {
		ls.resendPersisted(l, uid)
	}
}

// resendPersisted republish a persisted event during reupload. A uid
// whose backing bytes are unreadable is cleared and its window slot
// released, with the failure reported as a problem event.
func (ls *Links) resendPersisted(l *Link, uid string) {
	body, problems := ls.store.Retrieve(uid)
	if problems.HasErrors() {
		ls.logger.Error("retrieving event for reupload failed", "link", l.name, "uid", uid, "error", problems)
		ls.store.Clear(uid)
		for _, next := range l.reupload.ProcessAck(uid) {
			ls.resendPersisted(l, next)
		}
		if genErr := ls.GenerateEvent(message.NewProblemEvent(ls.nodeName, "reupload retrieve failed", map[string]any{
			"link": l.name,
			"uid":  uid,
		})); genErr != nil {
			ls.logger.Error("generating reupload problem event failed", "error", genErr)
		}
		return
	}
	if body == nil {
		// Acked and cleared between session start and resend.
		for _, next := range l.reupload.ProcessAck(uid) {
			ls.resendPersisted(l, next)
		}
		return
	}

	l.stats.EventsReuploaded++
	if err := ls.publishEventBytes(l, uid, body); err != nil {
		ls.logger.Warn("reupload publish failed, event remains pending", "link", l.name, "uid", uid, "error", err)
	}
}

// publishEventBytes publishes a persisted event body on a link and
// starts its ack timer. The envelope's MessageID is the event uid, so
// the peer's ack retires the stored copy.
func (ls *Links) publishEventBytes(l *Link, uid string, body []byte) error {
	env := message.Envelope{
		Type:        message.TypeEvent,
		Src:         ls.nodeName,
		Dst:         l.peer,
		MessageID:   uid,
		AckRequired: true,
		Timestamp:   time.Now().UTC(),
		Payload:     body,
	}
	wire, err := message.Encode(env)
	if err != nil {
		return err
	}

	if err := l.client.Publish(ls.topics.ForEnvelope(env), wire); err != nil {
		return err
	}

	l.stats.RecordSend(string(env.Type))
	ls.acks.StartAckTimer(l.name, uid, nil, ls.ackTimeout)
	return nil
}

// sendAck publishes an acknowledgment for a received message id.
// Acks are not persisted; a lost ack simply causes a redelivery.
func (ls *Links) sendAck(l *Link, messageID string) error {
	ack, err := message.NewAck(ls.nodeName, l.peer, messageID)
	if err != nil {
		return err
	}
	wire, err := message.Encode(ack)
	if err != nil {
		return err
	}
	if err := l.client.Publish(ls.topics.ForEnvelope(ack), wire); err != nil {
		return err
	}
	l.stats.RecordSend(string(ack.Type))
	return nil
}
