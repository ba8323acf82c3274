// Package mqtt provides the per-link broker client pool.
//
// Each configured link gets one Client wrapping paho.mqtt.golang. The
// client's connection goroutine is the only place blocking network I/O
// happens for that link: it connects with its own exponential backoff,
// establishes the link's subscriptions, and then holds the connection
// until it drops or the client is stopped.
//
// The client never touches link state. Everything it observes — a
// successful connect, a failed attempt, a lost connection, suback
// progress, an inbound message — is reported through the EventSink,
// which the proactor implements by marshalling each call onto the core
// queue. Reconnection is therefore deliberately not delegated to
// paho's auto-reconnect: the link state machine needs to see every
// individual attempt and loss as its own transition, which paho's
// silent retry would swallow.
//
// Suback progress is reported as a countdown. A link subscribing to N
// topics receives N suback callbacks carrying N-1, N-2, ... 0 pending;
// the state machine leaves its awaiting-setup states at zero.
//
// A retained status topic (edgelink/status/{node}) carries online /
// offline payloads with a Last Will for crash detection. It sits
// outside the envelope namespace so operators can watch it directly.
package mqtt
