package message

import (
	"time"

	"github.com/google/uuid"
)

// Type is the wire-level discriminant carried by every envelope.
// Dispatch is driven by this tag, never by payload reflection.
type Type string

const (
	// TypeEvent carries a persisted domain or comm event.
	TypeEvent Type = "event"

	// TypeAck acknowledges receipt of a specific message id.
	TypeAck Type = "ack"

	// TypePing is a lightweight peer-liveness probe.
	TypePing Type = "ping"
)

// Envelope is the generic wrapper for every message crossing a link.
// Topic: edgelink/{src}/to/{dst}/{type}
type Envelope struct {
	// Type discriminates the payload for dispatch.
	Type Type `json:"type"`

	// Src is the sending node's name.
	Src string `json:"src"`

	// Dst is the destination node's name.
	Dst string `json:"dst"`

	// MessageID uniquely identifies this message (UUID). For TypeEvent
	// envelopes it doubles as the persisted event uid, so an ack for
	// this id retires the persisted copy.
	MessageID string `json:"message_id"`

	// AckRequired requests an acknowledgment from the receiver. The
	// sender starts an ack timer when publishing with this set.
	AckRequired bool `json:"ack_required"`

	// Timestamp is when the envelope was created (UTC).
	Timestamp time.Time `json:"ts"`

	// Payload is the type-specific body, decoded according to Type.
	Payload []byte `json:"payload,omitempty"`
}

// AckPayload is the body of a TypeAck envelope.
type AckPayload struct {
	// AckMessageID is the message id being acknowledged.
	AckMessageID string `json:"ack_message_id"`
}

// NewEnvelope creates an envelope with a fresh message id and timestamp.
func NewEnvelope(t Type, src, dst string, ackRequired bool, payload []byte) Envelope {
	return Envelope{
		Type:        t,
		Src:         src,
		Dst:         dst,
		MessageID:   uuid.NewString(),
		AckRequired: ackRequired,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// NewAck creates the acknowledgment envelope for a received message.
// Acks are never themselves ack-required.
func NewAck(src, dst, ackedMessageID string) (Envelope, error) {
	payload, err := EncodeAckPayload(AckPayload{AckMessageID: ackedMessageID})
	if err != nil {
		return Envelope{}, err
	}
	return NewEnvelope(TypeAck, src, dst, false, payload), nil
}
