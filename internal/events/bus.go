// Package events carries engine lifecycle notifications (boot, quit, panic,
// status transitions) and log entries from their producers to any number of
// subscribers. Producers never block on slow subscribers.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. A nil Bus drops the event.
// Usage: bus.Publish(PanicEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case BootedEvent:
		event.Publish(b.dispatcher, e)
	case BootFailedEvent:
		event.Publish(b.dispatcher, e)
	case QuitEvent:
		event.Publish(b.dispatcher, e)
	case PanicEvent:
		event.Publish(b.dispatcher, e)
	case StatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e PanicEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(BootedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BootFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(QuitEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PanicEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// Used by the SSE endpoint, where Huma expects a channel-based select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}
