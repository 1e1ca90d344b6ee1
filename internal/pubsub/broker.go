// Package pubsub fans batch progress events out to independent consumers.
package pubsub

import (
	"context"
	"sync"
)

// EventType describes what happened to an issue in a batch.
type EventType string

const (
	Started EventType = "started"
	Fixed   EventType = "fixed"
	Failed  EventType = "failed"
	Skipped EventType = "skipped"
)

// Event wraps a typed payload with an event type.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// subscriberBufferSize is the default channel buffer size for each subscriber.
const subscriberBufferSize = 64

// Broker is a generic, thread-safe publish/subscribe broker.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[chan Event[T]]struct{}
}

// NewBroker creates a new Broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]struct{}),
	}
}

// Subscribe creates a new subscription. The returned channel receives events
// until the provided context is cancelled, at which point the channel is
// closed and the subscription is removed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return b.SubscribeBuffered(ctx, subscriberBufferSize)
}

// SubscribeBuffered is Subscribe with an explicit buffer size. A consumer
// that knows how many events will be published can size the buffer so that
// none are dropped.
func (b *Broker[T]) SubscribeBuffered(ctx context.Context, size int) <-chan Event[T] {
	if size < 1 {
		size = 1
	}
	ch := make(chan Event[T], size)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish broadcasts an event to all active subscribers. If a subscriber's
// buffer is full, the event is dropped for that subscriber (non-blocking).
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	evt := Event[T]{Type: eventType, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
