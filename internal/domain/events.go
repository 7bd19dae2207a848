// Package domain defines events for the event-driven architecture.
// Events carry state changes from services to the view without coupling them.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Lane events
	EventLaneStarted  EventType = "lane.started"
	EventLanePaused   EventType = "lane.paused"
	EventLaneVolume   EventType = "lane.volume"
	EventTrackChanged EventType = "lane.track_changed"

	// Crossfade events
	EventCrossfadeDone EventType = "crossfade.done"

	// Player events
	EventPlayerInitialized EventType = "player.initialized"
	EventPlayerError       EventType = "player.error"
	EventCatalogShuffled   EventType = "catalog.shuffled"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// LaneStartedEvent is published when a lane starts or resumes playback.
type LaneStartedEvent struct {
	baseEvent
	Category Category
	Track    Track
}

// Type returns the event type.
func (e LaneStartedEvent) Type() EventType {
	return EventLaneStarted
}

// NewLaneStartedEvent creates a new LaneStartedEvent.
func NewLaneStartedEvent(category Category, track Track) LaneStartedEvent {
	return LaneStartedEvent{
		baseEvent: newBaseEvent(),
		Category:  category,
		Track:     track,
	}
}

// LanePausedEvent is published when a lane is paused.
type LanePausedEvent struct {
	baseEvent
	Category Category
}

// Type returns the event type.
func (e LanePausedEvent) Type() EventType {
	return EventLanePaused
}

// NewLanePausedEvent creates a new LanePausedEvent.
func NewLanePausedEvent(category Category) LanePausedEvent {
	return LanePausedEvent{
		baseEvent: newBaseEvent(),
		Category:  category,
	}
}

// LaneVolumeEvent is published when a lane's volume changes.
type LaneVolumeEvent struct {
	baseEvent
	Category Category
	Volume   int // 0-100
}

// Type returns the event type.
func (e LaneVolumeEvent) Type() EventType {
	return EventLaneVolume
}

// NewLaneVolumeEvent creates a new LaneVolumeEvent.
func NewLaneVolumeEvent(category Category, volume int) LaneVolumeEvent {
	return LaneVolumeEvent{
		baseEvent: newBaseEvent(),
		Category:  category,
		Volume:    volume,
	}
}

// TrackChangedEvent is published when a lane advances to another track
// (skip or shuffle), whether or not the lane is audible.
type TrackChangedEvent struct {
	baseEvent
	Category Category
	Track    Track
	Index    int
}

// Type returns the event type.
func (e TrackChangedEvent) Type() EventType {
	return EventTrackChanged
}

// NewTrackChangedEvent creates a new TrackChangedEvent.
func NewTrackChangedEvent(category Category, track Track, index int) TrackChangedEvent {
	return TrackChangedEvent{
		baseEvent: newBaseEvent(),
		Category:  category,
		Track:     track,
		Index:     index,
	}
}

// CrossfadeDoneEvent is published when a crossfade finishes or is superseded.
type CrossfadeDoneEvent struct {
	baseEvent
	Category  Category
	Completed bool // false when a newer operation cut the fade short
}

// Type returns the event type.
func (e CrossfadeDoneEvent) Type() EventType {
	return EventCrossfadeDone
}

// NewCrossfadeDoneEvent creates a new CrossfadeDoneEvent.
func NewCrossfadeDoneEvent(category Category, completed bool) CrossfadeDoneEvent {
	return CrossfadeDoneEvent{
		baseEvent: newBaseEvent(),
		Category:  category,
		Completed: completed,
	}
}

// PlayerInitializedEvent is published when catalog loading finishes,
// whether from the remote listing or the degraded placeholder listing.
type PlayerInitializedEvent struct {
	baseEvent
	Degraded bool // true when the placeholder listing was used
}

// Type returns the event type.
func (e PlayerInitializedEvent) Type() EventType {
	return EventPlayerInitialized
}

// NewPlayerInitializedEvent creates a new PlayerInitializedEvent.
func NewPlayerInitializedEvent(degraded bool) PlayerInitializedEvent {
	return PlayerInitializedEvent{
		baseEvent: newBaseEvent(),
		Degraded:  degraded,
	}
}

// PlayerErrorEvent is published when an operation fails and the error is
// recorded in the state snapshot.
type PlayerErrorEvent struct {
	baseEvent
	Category Category // empty for player-wide failures
	Message  string
	Err      error
}

// Type returns the event type.
func (e PlayerErrorEvent) Type() EventType {
	return EventPlayerError
}

// NewPlayerErrorEvent creates a new PlayerErrorEvent.
func NewPlayerErrorEvent(category Category, message string, err error) PlayerErrorEvent {
	return PlayerErrorEvent{
		baseEvent: newBaseEvent(),
		Category:  category,
		Message:   message,
		Err:       err,
	}
}

// CatalogShuffledEvent is published when both catalogs are reshuffled.
type CatalogShuffledEvent struct {
	baseEvent
}

// Type returns the event type.
func (e CatalogShuffledEvent) Type() EventType {
	return EventCatalogShuffled
}

// NewCatalogShuffledEvent creates a new CatalogShuffledEvent.
func NewCatalogShuffledEvent() CatalogShuffledEvent {
	return CatalogShuffledEvent{baseEvent: newBaseEvent()}
}
