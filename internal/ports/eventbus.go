// Package ports define the EventBus interface for event-driven communication.
// The event bus realizes the change-notification contract between the
// controller and the view: services publish, the presenter subscribes.
package ports

import (
	"github.com/quietroom/quietroom/internal/domain"
)

// EventBus is the interface for publishing and subscribing to events.
//
// Thread-safety: implementations must be thread-safe as events may be
// published and subscribed from multiple goroutines simultaneously.
type EventBus interface {
	// Publish delivers an event to all subscribers of its type.
	// Handlers should process events quickly or dispatch to a background
	// goroutine if long processing is needed.
	Publish(event domain.Event)

	// Subscribe registers a handler for events of the specified type.
	// The same handler can be registered multiple times; each subscription
	// gets a unique SubscriptionID.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe removes a previously registered handler.
	// Unknown or already removed IDs are a no-op.
	Unsubscribe(id domain.SubscriptionID)

	// SubscribeAll registers a handler that receives every event
	// regardless of type. Useful for logging and debugging.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// HasSubscribers reports whether any subscription exists for the type.
	HasSubscribers(eventType domain.EventType) bool

	// Close shuts down the bus and clears all subscriptions.
	Close() error
}
