package events

import (
	"log/slog"
	"sync"

	"github.com/foyerhq/foyer/internal/domain"
)

// Handler consumes a published event. Handlers run on the dispatcher
// goroutine and should hand off any slow work themselves.
type Handler func(event domain.Event)

// Bus is an in-process fan-out with a bounded buffer. Publish never blocks
// the caller: when the buffer is full the event is dropped and logged.
type Bus struct {
	log    *slog.Logger
	queue  chan domain.Event
	done   chan struct{}
	mu     sync.RWMutex
	subs   []Handler
	closed bool
}

// NewBus constructs a Bus and starts its dispatcher. A buffer of zero or
// less falls back to 64.
func NewBus(buffer int, log *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	b := &Bus{
		log:   log,
		queue: make(chan domain.Event, buffer),
		done:  make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, h)
}

// Publish enqueues an event without blocking. Failure to deliver never
// propagates to the caller.
func (b *Bus) Publish(event domain.Event) {
	// The read lock also excludes Close, so the channel cannot be closed
	// between the flag check and the send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- event:
	default:
		b.log.Warn("event bus buffer full, dropping event", "kind", event.Kind)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		b.mu.RLock()
		subs := make([]Handler, len(b.subs))
		copy(subs, b.subs)
		b.mu.RUnlock()
		for _, h := range subs {
			h(event)
		}
	}
}
