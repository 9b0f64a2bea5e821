package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler consumes one event. Handlers run on the bus goroutine and
// should hand slow work off rather than block.
type Handler func(ctx context.Context, ev Event)

type subscriber struct {
	name string
	fn   Handler
}

// Bus fans events out to subscribers from a single dispatch goroutine.
// Publish never blocks: when the buffer is full the event is dropped and
// counted.
type Bus struct {
	ch      chan Event
	logger  *slog.Logger
	dropped atomic.Uint64

	mu   sync.RWMutex
	subs []subscriber

	done chan struct{}
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		ch:     make(chan Event, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Subscribe registers fn under name. Subscribers added after Start only
// see later events.
func (b *Bus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, fn: fn})
}

// Publish enqueues events without blocking, assigning ids to those
// without one.
func (b *Bus) Publish(evs ...Event) {
	for _, ev := range evs {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		select {
		case b.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were discarded because the buffer was
// full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Start runs the dispatch loop until ctx is cancelled, then delivers
// whatever is still buffered and returns.
func (b *Bus) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		for {
			select {
			case ev := <-b.ch:
				b.dispatch(ctx, ev)
			case <-ctx.Done():
				for {
					select {
					case ev := <-b.ch:
						b.dispatch(context.WithoutCancel(ctx), ev)
					default:
						return
					}
				}
			}
		}
	}()
}

// Done is closed once the dispatch loop has drained and exited.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(ctx, s, ev)
	}
}

func (b *Bus) call(ctx context.Context, s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"subscriber", s.name,
				"event_id", ev.ID,
				"kind", ev.Kind,
				"panic", r,
			)
		}
	}()
	s.fn(ctx, ev)
}
