package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

// Broker fans events out to every live subscriber.
// Publishing never blocks; a subscriber that falls behind loses events.
type Broker[T any] struct {
	mu       sync.RWMutex
	outboxes map[chan Event[T]]struct{}
	shut     bool
	capacity int
	dropped  uint64
}

// NewBroker returns a broker whose subscriptions buffer 64 events.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer returns a broker whose subscriptions buffer size events.
// Non-positive sizes fall back to the default.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Broker[T]{outboxes: map[chan Event[T]]struct{}{}, capacity: size}
}

// Subscribe opens a subscription that lives until ctx is done or the broker
// shuts down. A subscription on a shut broker is already closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	out := make(chan Event[T], b.capacity)

	b.mu.Lock()
	if b.shut {
		b.mu.Unlock()
		close(out)
		return out
	}
	b.outboxes[out] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.drop(out)
	}()
	return out
}

func (b *Broker[T]) drop(out chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, live := b.outboxes[out]; live {
		delete(b.outboxes, out)
		close(out)
	}
}

// Publish stamps payload and offers it to each subscriber without waiting.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	ev := Event[T]{Type: eventType, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shut {
		return
	}
	for out := range b.outboxes {
		select {
		case out <- ev:
		default:
			b.dropped++
		}
	}
}

// Close ends every subscription. Calling it again does nothing.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shut {
		return
	}
	b.shut = true
	for out := range b.outboxes {
		close(out)
	}
	clear(b.outboxes)
}

// SubscriberCount reports the live subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.outboxes)
}

// Dropped reports deliveries skipped because a subscriber was full.
func (b *Broker[T]) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
