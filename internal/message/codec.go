package message

import (
	"encoding/json"
	"fmt"
)

// Encode serialises an envelope to its JSON wire form.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return data, nil
}

// Decode parses an envelope from its JSON wire form.
//
// Malformed payloads and envelopes missing required addressing fields
// return ErrDecodeFailed; callers turn these into problem events and
// drop the message rather than propagating a crash.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrDecodeFailed)
	}
	if env.MessageID == "" {
		return Envelope{}, fmt.Errorf("%w: missing message_id", ErrDecodeFailed)
	}
	if env.Src == "" || env.Dst == "" {
		return Envelope{}, fmt.Errorf("%w: missing src or dst", ErrDecodeFailed)
	}

	return env, nil
}

// EncodeEvent serialises an event for use as a TypeEvent payload or as
// the persisted file content. The two forms are identical, which is
// what makes a persisted event directly re-publishable during reupload.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return data, nil
}

// DecodeEvent parses an event payload.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if ev.UID == "" {
		return Event{}, fmt.Errorf("%w: event missing uid", ErrDecodeFailed)
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("%w: event missing kind", ErrDecodeFailed)
	}
	return ev, nil
}

// EncodeAckPayload serialises a TypeAck payload.
func EncodeAckPayload(p AckPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return data, nil
}

// DecodeAckPayload parses a TypeAck payload.
func DecodeAckPayload(data []byte) (AckPayload, error) {
	var p AckPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return AckPayload{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if p.AckMessageID == "" {
		return AckPayload{}, fmt.Errorf("%w: ack missing ack_message_id", ErrDecodeFailed)
	}
	return p, nil
}
