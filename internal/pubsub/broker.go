// Package pubsub provides an in-process event broker used to fan out
// live tool output and approval notifications to interested subscribers.
package pubsub

import (
	"context"
	"sync"
)

// EventType labels the kind of event carried by a broker.
type EventType string

const (
	// EventCreated marks a newly created item (e.g. an approval request).
	EventCreated EventType = "created"
	// EventUpdated marks incremental progress (e.g. a live output chunk).
	EventUpdated EventType = "updated"
	// EventResolved marks a final outcome.
	EventResolved EventType = "resolved"
)

// Event pairs a payload with its event type.
type Event[T any] struct {
	Type    EventType
	Payload T
}

const defaultBuffer = 64

// Broker fans events out to subscribers without blocking publishers.
// Delivery is best-effort: a slow subscriber drops events rather than
// stalling the producer.
type Broker[T any] struct {
	mu     sync.RWMutex
	subs   map[chan Event[T]]struct{}
	done   chan struct{}
	buffer int
}

// NewBroker creates a broker with the default subscriber buffer size.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerBuffered[T](defaultBuffer)
}

// NewBrokerBuffered creates a broker with the given subscriber buffer size.
func NewBrokerBuffered[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker[T]{
		subs:   make(map[chan Event[T]]struct{}),
		done:   make(chan struct{}),
		buffer: buffer,
	}
}

// Subscribe registers for future events. The returned channel closes when
// ctx is done or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	ch := make(chan Event[T], b.buffer)
	b.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.subs[ch]; !ok {
			return
		}
		delete(b.subs, ch)
		close(ch)
	}()

	return ch
}

// Publish sends the payload to all current subscribers.
func (b *Broker[T]) Publish(t EventType, payload T) {
	b.mu.RLock()
	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}

	subs := make([]chan Event[T], 0, len(b.subs))
	for ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	evt := Event[T]{Type: t, Payload: payload}
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber, drop rather than block the publisher.
		}
	}
}

// SubscriberCount reports how many subscribers are currently attached.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Shutdown closes the broker and all subscriber channels.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}
