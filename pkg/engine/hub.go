// Package engine fans decoded packets out to sinks.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"pulsera/pkg/metrics"
	"pulsera/pkg/protocol"
)

const anonymousSubscriber = "anonymous"

type subscription struct {
	ch   chan protocol.Packet
	name string
}

// Hub broadcasts packets to every subscriber. A subscriber whose buffer is
// full misses the packet rather than stalling the others; the miss is
// counted against the subscriber's name.
type Hub struct {
	broadcast  chan protocol.Packet
	register   chan subscription
	unregister chan chan protocol.Packet
	clients    map[chan protocol.Packet]string
	clientBuf  int
	logger     zerolog.Logger
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan protocol.Packet, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func WithHubLogger(logger zerolog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan protocol.Packet, 256),
		register:   make(chan subscription),
		unregister: make(chan chan protocol.Packet),
		clients:    make(map[chan protocol.Packet]string),
		clientBuf:  100,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers packets until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case sub := <-h.register:
			h.clients[sub.ch] = sub.name
			h.logger.Debug().Str("subscriber", sub.name).Int("subscribers", len(h.clients)).Msg("hub subscribe")
		case ch := <-h.unregister:
			if name, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
				h.logger.Debug().Str("subscriber", name).Int("subscribers", len(h.clients)).Msg("hub unsubscribe")
			}
		case packet := <-h.broadcast:
			h.deliver(packet)
		}
	}
}

func (h *Hub) deliver(packet protocol.Packet) {
	for ch, name := range h.clients {
		select {
		case ch <- packet:
		default:
			metrics.PacketDropped(name)
		}
	}
}

func (h *Hub) shutdown() {
	h.logger.Debug().Int("subscribers", len(h.clients)).Msg("hub closed")
	for ch := range h.clients {
		close(ch)
	}
	clear(h.clients)
}

func (h *Hub) Subscribe() chan protocol.Packet {
	return h.SubscribeAs(anonymousSubscriber, h.clientBuf)
}

func (h *Hub) SubscribeWithBuffer(size int) chan protocol.Packet {
	return h.SubscribeAs(anonymousSubscriber, size)
}

// SubscribeAs registers a named subscriber. The name labels its drop
// counter and log lines; size <= 0 uses the hub's client buffer.
func (h *Hub) SubscribeAs(name string, size int) chan protocol.Packet {
	if size <= 0 {
		size = h.clientBuf
	}
	if name == "" {
		name = anonymousSubscriber
	}
	ch := make(chan protocol.Packet, size)
	h.register <- subscription{ch: ch, name: name}
	return ch
}

func (h *Hub) Unsubscribe(ch chan protocol.Packet) {
	h.unregister <- ch
}

func (h *Hub) Publish(packet protocol.Packet) {
	h.broadcast <- packet
}

// PublishContext is Publish that gives up once ctx is done.
func (h *Hub) PublishContext(ctx context.Context, packet protocol.Packet) error {
	select {
	case h.broadcast <- packet:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
