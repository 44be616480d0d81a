// Package eventbus provides event-driven communication infrastructure for
// execution orchestration.
package eventbus

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/events"
)

// EventPublisher publishes a single event keyed for partition affinity.
// Execution lifecycle events key on the execution ID so one worker sees a
// given execution's events in order; model audit events key on the request ID.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
