package message

import "fmt"

// TopicPrefix is the base for all edgelink topics.
// Scheme: edgelink/{src}/to/{dst}/{type}
const TopicPrefix = "edgelink"

// Topics provides builders for edgelink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := message.Topics{}
//	t := topics.Message("scada-12", "aggregator-1", message.TypeEvent)
//	// Returns: "edgelink/scada-12/to/aggregator-1/event"
type Topics struct{}

// Message returns the publish topic for an envelope from src to dst.
// The topic is derived deterministically from the envelope addressing,
// so a receiver can reconstruct the sender and type without decoding
// the payload.
func (Topics) Message(src, dst string, t Type) string {
	return fmt.Sprintf("%s/%s/to/%s/%s", TopicPrefix, src, dst, t)
}

// ForEnvelope returns the publish topic for an envelope.
func (tp Topics) ForEnvelope(env Envelope) string {
	return tp.Message(env.Src, env.Dst, env.Type)
}

// Inbound returns the subscription pattern covering every message a
// peer sends to this node: all types, one peer.
//
// Example: edgelink/aggregator-1/to/scada-12/#
func (Topics) Inbound(peer, self string) string {
	return fmt.Sprintf("%s/%s/to/%s/#", TopicPrefix, peer, self)
}
