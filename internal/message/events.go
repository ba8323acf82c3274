package message

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a persisted event.
//
// Comm events record link lifecycle transitions so the event trail is
// independently auditable and recoverable after a crash. They are
// persisted exactly like domain events and flow through the same
// reupload protocol.
type EventKind string

const (
	// KindMQTTConnect records a broker connection on a link.
	KindMQTTConnect EventKind = "comm.mqtt.connect"

	// KindMQTTConnectFailed records a failed broker connection attempt.
	KindMQTTConnectFailed EventKind = "comm.mqtt.connect_failed"

	// KindMQTTDisconnect records a lost broker connection.
	KindMQTTDisconnect EventKind = "comm.mqtt.disconnect"

	// KindMQTTFullySubscribed records that every subscription on a link
	// has been acknowledged by the broker.
	KindMQTTFullySubscribed EventKind = "comm.mqtt.fully_subscribed"

	// KindPeerActive records the first message received from the peer
	// after (re)connection.
	KindPeerActive EventKind = "comm.peer_active"

	// KindProblem records a structured error report. Errors are data,
	// not just logs; when an upstream peer exists they are forwarded.
	KindProblem EventKind = "problem"

	// KindStartup records process start.
	KindStartup EventKind = "startup"

	// KindShutdown records an orderly process stop, including the fatal
	// cause when the stop was watchdog- or error-driven.
	KindShutdown EventKind = "shutdown"
)

// CommEventKinds lists the kinds emitted by link state transitions.
var CommEventKinds = []EventKind{
	KindMQTTConnect,
	KindMQTTConnectFailed,
	KindMQTTDisconnect,
	KindMQTTFullySubscribed,
	KindPeerActive,
}

// Event is the persisted body of a TypeEvent envelope.
//
// The UID doubles as the envelope MessageID when the event is published,
// so a peer ack for that id retires the persisted copy.
type Event struct {
	// UID uniquely identifies the event (UUID).
	UID string `json:"uid"`

	// Kind classifies the event.
	Kind EventKind `json:"kind"`

	// Time is when the event occurred (UTC).
	Time time.Time `json:"time"`

	// Src is the node that generated the event.
	Src string `json:"src"`

	// Link names the link a comm event refers to. Empty for domain events.
	Link string `json:"link,omitempty"`

	// Details carries kind-specific data.
	Details map[string]any `json:"details,omitempty"`
}

// NewEvent creates a domain event with a fresh uid and timestamp.
func NewEvent(kind EventKind, src string, details map[string]any) Event {
	return Event{
		UID:     uuid.NewString(),
		Kind:    kind,
		Time:    time.Now().UTC(),
		Src:     src,
		Details: details,
	}
}

// NewCommEvent creates a link lifecycle event.
func NewCommEvent(kind EventKind, src, link string, details map[string]any) Event {
	ev := NewEvent(kind, src, details)
	ev.Link = link
	return ev
}

// NewProblemEvent creates a structured error report event.
func NewProblemEvent(src, summary string, details map[string]any) Event {
	if details == nil {
		details = make(map[string]any, 1)
	}
	details["summary"] = summary
	return NewEvent(KindProblem, src, details)
}

// IsComm reports whether the event records a link lifecycle transition.
func (e Event) IsComm() bool {
	for _, k := range CommEventKinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}
