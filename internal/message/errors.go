package message

import "errors"

// Domain-specific errors for message encoding and decoding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEncodeFailed is returned when an envelope or payload cannot be
	// serialised.
	ErrEncodeFailed = errors.New("message: encode failed")

	// ErrDecodeFailed is returned for malformed wire bytes or envelopes
	// missing required fields. Receivers report these as problem events
	// and drop the message.
	ErrDecodeFailed = errors.New("message: decode failed")
)
