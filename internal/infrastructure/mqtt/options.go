package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// connectTimeout is the maximum time to wait for one connection attempt.
	connectTimeout = 10 * time.Second

	// publishTimeout is the maximum time to wait for broker publish acknowledgment.
	publishTimeout = 5 * time.Second

	// subscribeTimeout is the maximum time to wait for a suback.
	subscribeTimeout = 5 * time.Second

	// disconnectQuiesce is the time allowed for pending operations on disconnect.
	disconnectQuiesce = 1000 // milliseconds

	// stopWait bounds how long Stop waits for the connection goroutine to join.
	stopWait = 5 * time.Second

	// keepAlive is the MQTT keepalive interval; the broker uses it to
	// detect dead connections faster than TCP would.
	keepAlive = 60 * time.Second

	// patInterval is how often an idle client thread heartbeats the watchdog.
	patInterval = 5 * time.Second

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho options from a link's configuration.
//
// Reconnection is deliberately NOT delegated to paho: the client runs
// its own backoff loop so every failed attempt and every loss surfaces
// as a distinct connect-failed or disconnected event for the link state
// machine. Paho's silent auto-reconnect would hide those transitions.
func buildClientOptions(cfg config.LinkConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Fresh session each connect; durable delivery is the persister's
	// job, not the broker's.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// statusTopic is the retained node-status topic, outside the link
// envelope namespace so operators can watch it without decoding
// envelopes.
func statusTopic(node string) string {
	return "edgelink/status/" + node
}

// configureLWT arranges for the broker to mark this node offline if the
// connection drops without a graceful disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, node, clientID string) {
	payload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
	opts.SetWill(statusTopic(node), payload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// nextDelay doubles a backoff delay, capped at maxDelay.
func nextDelay(current, maxDelay time.Duration) time.Duration {
	next := current * 2
	if next > maxDelay {
		return maxDelay
	}
	return next
}
