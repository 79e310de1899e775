// Package pubsub fans typed events out to in-process subscribers.
package pubsub

import (
	"context"
	"time"
)

// EventType names what an Event is about.
type EventType string

const (
	// LogEvent carries a formatted log line.
	LogEvent EventType = "log"
	// StateEvent carries a scan loop state transition.
	StateEvent EventType = "state"
	// ClaimedEvent is published when a work item changes owner.
	ClaimedEvent EventType = "claimed"
	// CompletedEvent is published when an item finished processing.
	CompletedEvent EventType = "completed"
	// FailedEvent is published when an item's processing failed.
	FailedEvent EventType = "failed"
)

// Event is one delivery: a kind, its payload and when it was published.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber is what a Listener reads from.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher is the sending side used by the scan loop and the logger.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
