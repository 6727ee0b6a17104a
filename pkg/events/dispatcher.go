package events

import (
	"context"
	"sync"

	"github.com/aqarly/aqarly/pkg/observability"
)

// Dispatcher receives domain events from the core. Dispatch must never
// block the caller.
type Dispatcher interface {
	Dispatch(event Event)
}

// Handler consumes dispatched events
type Handler func(ctx context.Context, event Event)

// ChannelDispatcher buffers events on a channel and fans them out to
// registered handlers from a single consumer goroutine. A full buffer
// drops the event rather than stalling a request.
type ChannelDispatcher struct {
	ch       chan Event
	handlers []Handler
	logger   *observability.Logger

	mu      sync.RWMutex
	started bool
	done    chan struct{}
}

// NewChannelDispatcher creates a dispatcher with the given buffer size
func NewChannelDispatcher(bufferSize int, logger *observability.Logger) *ChannelDispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelDispatcher{
		ch:     make(chan Event, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Subscribe registers a handler. Must be called before Start.
func (d *ChannelDispatcher) Subscribe(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler)
}

// Dispatch enqueues an event without blocking
func (d *ChannelDispatcher) Dispatch(event Event) {
	select {
	case d.ch <- event:
	default:
		d.logger.WithField("event_type", string(event.Type())).Warn("event buffer full, dropping event")
	}
}

// Start launches the consumer goroutine. It stops when ctx is done.
func (d *ChannelDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for {
			select {
			case event := <-d.ch:
				d.deliver(ctx, event)
			case <-ctx.Done():
				// Drain what is already buffered before exiting
				for {
					select {
					case event := <-d.ch:
						d.deliver(context.Background(), event)
					default:
						return
					}
				}
			}
		}
	}()
}

// Wait blocks until the consumer goroutine has exited
func (d *ChannelDispatcher) Wait() {
	<-d.done
}

func (d *ChannelDispatcher) deliver(ctx context.Context, event Event) {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
}

// NopDispatcher discards all events. Useful in tests.
type NopDispatcher struct{}

// Dispatch implements Dispatcher
func (NopDispatcher) Dispatch(Event) {}
