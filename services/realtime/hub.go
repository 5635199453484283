package realtime

import (
	"context"
	"sync"
)

type hubSub struct {
	ch chan []byte
}

// Hub is an in-process Broker. Slow subscribers miss payloads rather than block publishers.
type Hub struct {
	name   string // metrics label
	mu     sync.RWMutex
	subs   map[string]map[*hubSub]struct{}
	closed bool
}

var _ Broker = (*Hub)(nil)

func NewHub() *Hub {
	return newHub(BrokerMemory)
}

func newHub(name string) *Hub {
	return &Hub{name: name, subs: make(map[string]map[*hubSub]struct{})}
}

func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for sub := range h.subs[topic] {
		deliver(sub.ch, payload, h.name)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	sub := &hubSub{ch: make(chan []byte, subscriberBuffer)}
	for _, topic := range topics {
		if h.subs[topic] == nil {
			h.subs[topic] = make(map[*hubSub]struct{})
		}
		h.subs[topic][sub] = struct{}{}
	}
	return newSubscription(ctx, sub.ch, func() { h.unsubscribe(sub, topics) }), nil
}

func (h *Hub) unsubscribe(sub *hubSub, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return // already closed by Close
	}
	for _, topic := range topics {
		delete(h.subs[topic], sub)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
	}
	close(sub.ch)
}

// Subscribers returns the number of subscriptions to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	closed := make(map[*hubSub]struct{})
	for _, subs := range h.subs {
		for sub := range subs {
			if _, ok := closed[sub]; !ok {
				close(sub.ch)
				closed[sub] = struct{}{}
			}
		}
	}
	h.subs = nil
	return nil
}
