package link

import (
	"github.com/oakfield-systems/edgelink-core/internal/message"
)

// State is the connectivity + subscription + peer-liveness state of one
// MQTT link.
type State string

const (
	StateNotStarted          State = "not_started"
	StateConnecting          State = "connecting"
	StateConnected           State = "connected"
	StateAwaitingSetup       State = "awaiting_setup"
	StateAwaitingPeer        State = "awaiting_peer"
	StateAwaitingSetupAndPeer State = "awaiting_setup_and_peer"
	StateActive              State = "active"
)

// Input is a transition input for the link state machine.
type Input string

const (
	InputStart             Input = "started"
	InputMQTTConnected     Input = "mqtt_connected"
	InputMQTTConnectFailed Input = "mqtt_connect_failed"
	InputMQTTDisconnected  Input = "mqtt_disconnected"
	InputMQTTSuback        Input = "mqtt_suback"
	InputMessageFromPeer   Input = "message_from_peer"
	InputAckTimeout        Input = "ack_timeout"
)

// Transition records one accepted state-machine input.
type Transition struct {
	Link        string
	Input       Input
	Old         State
	New         State
	PendingSubs int // only meaningful for InputMQTTSuback
}

// Changed reports whether the input moved the machine to a new state.
func (t Transition) Changed() bool {
	return t.Old != t.New
}

// CommEventKind maps a state-changing transition to the comm event it
// must emit, or "" when the transition carries no comm event (the ack
// timeout demotion is reported as a problem event by the link layer
// instead).
func (t Transition) CommEventKind() message.EventKind {
	if !t.Changed() {
		return ""
	}
	switch t.Input {
	case InputMQTTConnected:
		return message.KindMQTTConnect
	case InputMQTTDisconnected:
		return message.KindMQTTDisconnect
	case InputMQTTSuback:
		return message.KindMQTTFullySubscribed
	case InputMessageFromPeer:
		return message.KindPeerActive
	default:
		return ""
	}
}

// LinkState is the finite state machine tracking one link. Pure state,
// no I/O; owned and mutated exclusively by the proactor core loop.
//
// Transitions not listed in the table below fail with
// *InvalidTransitionError and leave the state unchanged:
//
//	not_started             --started-->                     connecting
//	connecting              --mqtt_connected-->              awaiting_setup_and_peer
//	connecting              --mqtt_connect_failed-->         connecting
//	awaiting_setup_and_peer --mqtt_suback (pending==0)-->    awaiting_peer
//	awaiting_setup_and_peer --mqtt_suback (pending>0)-->     awaiting_setup_and_peer
//	awaiting_setup_and_peer --message_from_peer-->           awaiting_setup
//	awaiting_setup_and_peer --mqtt_disconnected-->           connecting
//	awaiting_peer           --message_from_peer-->           active
//	awaiting_peer           --ack_timeout-->                 awaiting_peer
//	awaiting_peer           --mqtt_disconnected-->           connecting
//	awaiting_setup          --mqtt_suback (pending==0)-->    active
//	awaiting_setup          --mqtt_suback (pending>0)-->     awaiting_setup
//	awaiting_setup          --message_from_peer-->           awaiting_setup
//	awaiting_setup          --mqtt_disconnected-->           connecting
//	active                  --ack_timeout-->                 awaiting_peer
//	active                  --mqtt_disconnected-->           connecting
type LinkState struct {
	name  string
	state State
}

// NewLinkState creates a machine in the not_started state.
func NewLinkState(name string) *LinkState {
	return &LinkState{name: name, state: StateNotStarted}
}

// Name returns the link's name.
func (l *LinkState) Name() string { return l.name }

// State returns the current state.
func (l *LinkState) State() State { return l.state }

// ActiveForSend reports whether the link can carry outbound publishes.
// Subscriptions need not be complete to publish.
func (l *LinkState) ActiveForSend() bool {
	switch l.state {
	case StateAwaitingPeer, StateAwaitingSetup, StateActive:
		return true
	default:
		return false
	}
}

// ActiveForRecv reports whether the link is fully functional.
func (l *LinkState) ActiveForRecv() bool {
	return l.state == StateActive
}

// Start processes the started input.
func (l *LinkState) Start() (Transition, error) {
	if l.state != StateNotStarted {
		return Transition{}, l.invalid(InputStart)
	}
	return l.to(InputStart, StateConnecting), nil
}

// ProcessMQTTConnected processes a broker connection.
func (l *LinkState) ProcessMQTTConnected() (Transition, error) {
	if l.state != StateConnecting {
		return Transition{}, l.invalid(InputMQTTConnected)
	}
	return l.to(InputMQTTConnected, StateAwaitingSetupAndPeer), nil
}

// ProcessMQTTConnectFailed processes a failed connection attempt.
// Retry backoff is the MQTT client's concern, not the machine's.
func (l *LinkState) ProcessMQTTConnectFailed() (Transition, error) {
	if l.state != StateConnecting {
		return Transition{}, l.invalid(InputMQTTConnectFailed)
	}
	return l.to(InputMQTTConnectFailed, StateConnecting), nil
}

// ProcessMQTTDisconnected processes a lost broker connection.
func (l *LinkState) ProcessMQTTDisconnected() (Transition, error) {
	switch l.state {
	case StateAwaitingSetupAndPeer, StateAwaitingPeer, StateAwaitingSetup, StateActive:
		return l.to(InputMQTTDisconnected, StateConnecting), nil
	default:
		return Transition{}, l.invalid(InputMQTTDisconnected)
	}
}

// ProcessMQTTSuback processes a subscription acknowledgment.
// pendingSubs is the number of subscriptions still awaiting their
// suback; the broker may split acknowledgment across multiple messages.
func (l *LinkState) ProcessMQTTSuback(pendingSubs int) (Transition, error) {
	var tr Transition
	switch l.state {
	case StateAwaitingSetupAndPeer:
		if pendingSubs == 0 {
			tr = l.to(InputMQTTSuback, StateAwaitingPeer)
		} else {
			tr = l.to(InputMQTTSuback, StateAwaitingSetupAndPeer)
		}
	case StateAwaitingSetup:
		if pendingSubs == 0 {
			tr = l.to(InputMQTTSuback, StateActive)
		} else {
			tr = l.to(InputMQTTSuback, StateAwaitingSetup)
		}
	default:
		return Transition{}, l.invalid(InputMQTTSuback)
	}
	tr.PendingSubs = pendingSubs
	return tr, nil
}

// ProcessMessageFromPeer processes the receipt of any peer message.
func (l *LinkState) ProcessMessageFromPeer() (Transition, error) {
	switch l.state {
	case StateAwaitingSetupAndPeer:
		return l.to(InputMessageFromPeer, StateAwaitingSetup), nil
	case StateAwaitingPeer:
		return l.to(InputMessageFromPeer, StateActive), nil
	case StateAwaitingSetup:
		return l.to(InputMessageFromPeer, StateAwaitingSetup), nil
	default:
		return Transition{}, l.invalid(InputMessageFromPeer)
	}
}

// ProcessAckTimeout processes an acknowledgment timeout. In active the
// peer is presumed stale and the link demotes to awaiting_peer; in
// awaiting_peer the timeout is logged but does not demote further.
func (l *LinkState) ProcessAckTimeout() (Transition, error) {
	switch l.state {
	case StateActive:
		return l.to(InputAckTimeout, StateAwaitingPeer), nil
	case StateAwaitingPeer:
		return l.to(InputAckTimeout, StateAwaitingPeer), nil
	default:
		return Transition{}, l.invalid(InputAckTimeout)
	}
}

// to applies a transition and returns its record.
func (l *LinkState) to(input Input, next State) Transition {
	tr := Transition{Link: l.name, Input: input, Old: l.state, New: next}
	l.state = next
	return tr
}

// invalid builds the typed error for an input the current state does
// not accept. The machine is left unchanged.
func (l *LinkState) invalid(input Input) error {
	return &InvalidTransitionError{Link: l.name, State: l.state, Input: input}
}
