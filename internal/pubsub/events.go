// Package pubsub delivers state changes from background goroutines into the
// Bubble Tea update loop.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the kind of change being published.
type EventType string

const (
	// UpdatedEvent carries a new value that replaces the previous one.
	UpdatedEvent EventType = "updated"
	// FailedEvent reports that producing a new value failed; the payload is
	// the last good value.
	FailedEvent EventType = "failed"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Err       error
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes events with a typed payload.
type Publisher[T any] interface {
	Publish(event Event[T])
}
