// Package message defines the wire envelope, event payloads, and topic
// addressing shared by every edgelink link.
//
// # Envelope
//
// Every message crossing a link is an Envelope carrying a Type
// discriminant, source and destination node names, a UUID message id,
// and an ack-required flag. Dispatch is driven by the Type tag through
// explicit handler tables; nothing in the runtime inspects payload
// structure to route a message.
//
// # Events
//
// TypeEvent payloads are Events: domain events plus comm events (link
// lifecycle transitions) and problem events (structured error reports).
// The encoded event is byte-identical to its persisted file content, so
// reupload republishes stored files without re-marshalling.
//
// # Topics
//
// Topics are derived deterministically from envelope addressing:
//
//	edgelink/{src}/to/{dst}/{type}
//
// A node subscribes to edgelink/{peer}/to/{self}/# on each link.
package message
