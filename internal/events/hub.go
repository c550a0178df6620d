// Package events fans host notifications out to presentation-layer clients.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one notification.
type Event struct {
	Seq  uint64    `json:"seq"`
	Name string    `json:"event"`
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"time"`
}

// Hub delivers published events to every subscriber. A subscriber whose
// buffer is full misses the event rather than blocking the publisher.
type Hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	seq    uint64
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, subs: make(map[uint64]chan Event)}
}

// Publish sends an event to all current subscribers.
func (h *Hub) Publish(name string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	ev := Event{Seq: h.seq, Name: name, Data: data, Time: time.Now().UTC()}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("event dropped for slow subscriber",
				zap.Uint64("subscriber", id), zap.String("event", name))
		}
	}
}

// Subscribe returns a channel of future events and a function that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		})
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
