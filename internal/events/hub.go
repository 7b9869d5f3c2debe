// Package events fans engine events out to subscribers such as the CLI
// renderer.
package events

import (
	"sync"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/observability"
)

const defaultBuffer = 64

// Hub implements ports.EventSink. Each subscriber owns a buffered channel;
// a full buffer drops the event for that subscriber instead of blocking the
// emitter.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]chan ports.Event
	nextID      uint64
	buffer      int
	dropped     uint64
	closed      bool
	metrics     *observability.Metrics
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, metrics *observability.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subscribers: make(map[uint64]chan ports.Event),
		buffer:      buffer,
		metrics:     metrics,
	}
}

// Subscribe registers a listener. Call the returned function to stop
// receiving events; it closes the channel.
func (h *Hub) Subscribe() (<-chan ports.Event, func()) {
	ch := make(chan ports.Event, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if existing, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(existing)
			}
		})
	}
}

// Emit delivers event to every subscriber without blocking.
func (h *Hub) Emit(event ports.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.dropped++
			h.metrics.IncEventDropped()
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every subscriber channel. Later Emits are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Func adapts a function to ports.EventSink.
type Func func(ports.Event)

func (f Func) Emit(event ports.Event) {
	if f != nil {
		f(event)
	}
}

// Multi emits to every non-nil sink in order.
func Multi(sinks ...ports.EventSink) ports.EventSink {
	out := make([]ports.EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return multiSink(out)
}

type multiSink []ports.EventSink

func (m multiSink) Emit(event ports.Event) {
	for _, s := range m {
		s.Emit(event)
	}
}

var (
	_ ports.EventSink = (*Hub)(nil)
	_ ports.EventSink = Func(nil)
)
