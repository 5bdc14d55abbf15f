package hub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/yycnik/json-log-parser/internal/model"
)

const subscriberBuffer = 16

// Hub receives finished reports and broadcasts them to all subscribers.
type Hub struct {
	input       <-chan model.Report
	log         zerolog.Logger
	mu          sync.RWMutex
	subscribers map[chan model.Report]struct{}
	latest      *model.Report
	closed      bool
	dropped     atomic.Int64
}

// New creates a Hub that reads reports from the input channel.
func New(input <-chan model.Report, log zerolog.Logger) *Hub {
	return &Hub{
		input:       input,
		log:         log,
		subscribers: make(map[chan model.Report]struct{}),
	}
}

// Subscribe returns a buffered channel that will receive every report.
// The latest report, if any, is delivered first. Once the hub has stopped
// the channel is already closed after that report.
func (h *Hub) Subscribe() <-chan model.Report {
	ch := make(chan model.Report, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil {
		ch <- *h.latest
	}
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (h *Hub) Unsubscribe(ch <-chan model.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		if sub == ch {
			delete(h.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Latest returns the most recent report.
func (h *Hub) Latest() (model.Report, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return model.Report{}, false
	}
	return *h.latest, true
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns the total number of reports dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Start begins reading from the input channel and broadcasting.
// Blocks until the context is cancelled or the input channel is closed.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-h.input:
			if !ok {
				return
			}
			h.broadcast(report)
		}
	}
}

// broadcast records report as the latest and sends it to all subscribers.
// If a subscriber's channel is full, the report is dropped for that
// subscriber.
func (h *Hub) broadcast(report model.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = &report
	for ch := range h.subscribers {
		select {
		case ch <- report:
		default:
			n := h.dropped.Add(1)
			h.log.Warn().Int64("dropped", n).Msg("Dropped report for slow consumer")
		}
	}
}

// closeAll closes all subscriber channels and refuses new ones.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan model.Report]struct{})
}
