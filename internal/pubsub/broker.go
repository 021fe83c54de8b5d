package pubsub

import (
	"context"
	"sync"
	"time"
)

// Broker fans events out to subscribers. Each subscriber holds at most one
// pending event: when a subscriber has not consumed the previous event yet,
// the newer one replaces it, so slow consumers always see the latest state
// and publishers never block.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   map[chan Event[T]]struct{}
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subs: make(map[chan Event[T]]struct{})}
}

// Subscribe registers a subscriber. The channel is closed when ctx is
// cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(chan Event[T], 1)
	if b.closed {
		close(sub)
		return sub
	}
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

// Publish delivers event to every subscriber, replacing any event the
// subscriber has not consumed yet. A zero Timestamp is set to now.
func (b *Broker[T]) Publish(event Event[T]) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case <-sub: // drop the stale pending event
		default:
		}
		sub <- event // cannot block: capacity 1, drained above, sends serialized by mu
	}
}

// Update publishes an UpdatedEvent carrying payload.
func (b *Broker[T]) Update(payload T) {
	b.Publish(Event[T]{Type: UpdatedEvent, Payload: payload})
}

// Fail publishes a FailedEvent carrying the last good payload and err.
func (b *Broker[T]) Fail(payload T, err error) {
	b.Publish(Event[T]{Type: FailedEvent, Payload: payload, Err: err})
}

// Close shuts down the broker and closes every subscriber channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
