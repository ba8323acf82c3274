package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/config"
)

// EventSink receives a client's connectivity and message callbacks.
// Every method must be safe to call from the client's goroutines; the
// proactor satisfies this by marshalling each call onto its queue.
type EventSink interface {
	OnMQTTConnected(linkName string)
	OnMQTTConnectFailed(linkName string)
	OnMQTTDisconnected(linkName string)
	OnMQTTSuback(linkName string, pendingSubs int)
	OnMQTTMessage(linkName, topic string, payload []byte)
	Pat(actor string)
}

// Logger defines the logging interface for the MQTT layer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is one broker connection serving one link. Its connection
// goroutine performs all blocking network calls and reports everything
// that happens (connects, failures, losses, subacks, messages) to the
// EventSink; it never touches link state itself.
//
// Thread Safety:
//   - Start, Stop and Publish are safe for concurrent use.
type Client struct {
	linkName string
	node     string
	cfg      config.LinkConfig
	topics   []string

	events EventSink
	logger Logger

	paho pahomqtt.Client
	lost chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

// NewClient creates a client for a link. topics is the set of
// subscriptions established on every (re)connect; for an edgelink link
// this is the single inbound wildcard for its peer.
func NewClient(node string, cfg config.LinkConfig, topics []string, events EventSink, logger Logger) *Client {
	opts := buildClientOptions(cfg)
	configureLWT(opts, node, cfg.Broker.ClientID)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		linkName: cfg.Name,
		node:     node,
		cfg:      cfg,
		topics:   topics,
		events:   events,
		logger:   logger,
		lost:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("mqtt connection lost", "link", c.linkName, "error", err)
		select {
		case c.lost <- struct{}{}:
		default:
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	return c
}

// LinkName returns the link this client serves.
func (c *Client) LinkName() string { return c.linkName }

// WatchdogActor returns the name this client's goroutine pats under.
func (c *Client) WatchdogActor() string { return "mqtt-" + c.linkName }

// Start launches the connection goroutine. Connection progress arrives
// at the EventSink; Start itself never blocks on the network.
func (c *Client) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go c.run()
}

// Stop disconnects and joins the connection goroutine with a bounded
// wait. A graceful offline status is published if connected.
func (c *Client) Stop() {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopWait):
		c.logger.Warn("mqtt client did not stop in time", "link", c.linkName)
	}

	if c.paho.IsConnected() {
		token := c.paho.Publish(statusTopic(c.node), 1, true, buildOfflinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(disconnectQuiesce)
}

// Publish sends a payload on a topic with the link's configured QoS.
// Delivery to the peer is still only confirmed by a peer-level ack;
// this confirms no more than broker receipt.
func (c *Client) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.paho.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Publish(topic, byte(c.cfg.QoS), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// run is the connection goroutine: connect with exponential backoff,
// subscribe, then hold the connection until it drops or Stop is called.
// Each attempt and each loss is reported so the link state machine sees
// every transition.
func (c *Client) run() {
	defer c.wg.Done()

	initial := time.Duration(c.cfg.Reconnect.InitialDelay) * time.Second
	maxDelay := time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second
	delay := initial

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		token := c.paho.Connect()
		if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
			c.events.OnMQTTConnectFailed(c.linkName)
			c.logger.Warn("mqtt connect attempt failed",
				"link", c.linkName,
				"retry_in", delay,
				"error", token.Error(),
			)
			if !c.sleep(delay) {
				return
			}
			delay = nextDelay(delay, maxDelay)
			continue
		}

		delay = initial
		c.logger.Info("mqtt connected", "link", c.linkName, "client_id", c.cfg.Broker.ClientID)
		c.events.OnMQTTConnected(c.linkName)
		c.publishOnlineStatus()
		c.subscribeAll()

		if !c.holdConnection() {
			return
		}
		c.events.OnMQTTDisconnected(c.linkName)
	}
}

// holdConnection blocks until the connection drops (true) or the client
// is stopped (false), patting the watchdog while idle.
func (c *Client) holdConnection() bool {
	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-c.lost:
			return true
		case <-time.After(patInterval):
			c.events.Pat(c.WatchdogActor())
		}
	}
}

// sleep waits for the backoff delay, patting the watchdog so a long
// broker outage is not mistaken for a hung client. Returns false when
// stopped.
func (c *Client) sleep(delay time.Duration) bool {
	deadline := time.NewTimer(delay)
	defer deadline.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-deadline.C:
			return true
		case <-time.After(patInterval):
			c.events.Pat(c.WatchdogActor())
		}
	}
}

// subscribeAll establishes the link's subscriptions and reports suback
// progress. The broker acknowledges each subscription separately, so
// each completion posts the count still outstanding; the state machine
// leaves its awaiting-setup states only when that count reaches zero.
func (c *Client) subscribeAll() {
	if len(c.topics) == 0 {
		c.events.OnMQTTSuback(c.linkName, 0)
		return
	}

	remaining := int32(len(c.topics))
	for _, topic := range c.topics {
		token := c.paho.Subscribe(topic, byte(c.cfg.QoS), c.handleMessage)
		c.wg.Add(1)
		go func(topic string, token pahomqtt.Token) {
			defer c.wg.Done()
			if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
				// The connection will be torn down or retried; the
				// link stays in awaiting-setup until a clean suback.
				c.logger.Error("mqtt subscribe failed",
					"link", c.linkName,
					"topic", topic,
					"error", token.Error(),
				)
				return
			}
			left := atomic.AddInt32(&remaining, -1)
			c.events.OnMQTTSuback(c.linkName, int(left))
		}(topic, token)
	}
}

// handleMessage forwards inbound bytes to the sink. The payload is
// copied because paho reuses its receive buffers.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	c.events.OnMQTTMessage(c.linkName, msg.Topic(), payload)
}

// publishOnlineStatus publishes the retained online status for operators.
func (c *Client) publishOnlineStatus() {
	c.paho.Publish(statusTopic(c.node), 1, true, buildOnlinePayload(c.cfg.Broker.ClientID))
}
