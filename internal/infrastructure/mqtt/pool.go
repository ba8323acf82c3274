package mqtt

import (
	"fmt"

	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/config"
	"github.com/oakfield-systems/edgelink-core/internal/message"
)

// Pool holds one Client per configured link. Clients are built
// together so their subscriptions follow the same topic scheme, then
// handed to the link façade which owns their Start/Stop lifecycle.
type Pool struct {
	clients map[string]*Client
	order   []string
}

// NewPool builds a client per link. Each client subscribes to its
// peer's inbound wildcard, edgelink/{peer}/to/{node}/#.
func NewPool(node string, links []config.LinkConfig, events EventSink, logger Logger) (*Pool, error) {
	p := &Pool{clients: make(map[string]*Client, len(links))}
	for _, cfg := range links {
		if _, exists := p.clients[cfg.Name]; exists {
			return nil, fmt.Errorf("mqtt: duplicate link name %q", cfg.Name)
		}
		topics := []string{message.Topics{}.Inbound(cfg.PeerName, node)}
		p.clients[cfg.Name] = NewClient(node, cfg, topics, events, logger)
		p.order = append(p.order, cfg.Name)
	}
	return p, nil
}

// Get returns the client serving a link.
func (p *Pool) Get(linkName string) (*Client, error) {
	c, ok := p.clients[linkName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLink, linkName)
	}
	return c, nil
}

// Clients returns the pool's clients in configuration order.
func (p *Pool) Clients() []*Client {
	out := make([]*Client, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.clients[name])
	}
	return out
}
