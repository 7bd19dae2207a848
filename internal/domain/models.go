// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the QuietRoom ambient player.
package domain

import (
	"time"
)

// Category identifies one of the two fixed ambient-sound groupings.
// Each category is played on its own independent lane.
type Category string

const (
	// CategoryBrown is the brown-noise category (lane A).
	CategoryBrown Category = "brown"

	// CategoryRain is the rain category (lane B).
	CategoryRain Category = "rain"
)

// Categories lists every category in lane order (A, B).
func Categories() []Category {
	return []Category{CategoryBrown, CategoryRain}
}

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// Track is an immutable descriptor of one ambient track.
// Only PlayableURL may change after creation (re-resolution on failure);
// a shuffle replaces the whole ordered list rather than mutating tracks.
type Track struct {
	// ID is a unique identifier for the track (UUID)
	ID string

	// Title is the display title (from the listing or sniffed metadata)
	Title string

	// Artist is the performing artist, if known
	Artist string

	// Category is the grouping this track belongs to
	Category Category

	// SourceKey is the opaque storage key used by the resolver and cache
	SourceKey string

	// PlayableURL is the resolved fetchable URL; empty until resolved,
	// re-resolved when a load attempt fails
	PlayableURL string

	// FallbackURL is an inline last-resort URL used when resolution
	// of SourceKey produces an unfetchable source
	FallbackURL string
}

// SourceHandle is an opaque reference to a live audio source inside the
// engine: one looping media source paired with its gain node.
type SourceHandle int64

const (
	// InvalidSourceHandle represents an unset or released handle
	InvalidSourceHandle SourceHandle = 0
)

// ContextState is the lifecycle state of the shared audio context.
type ContextState int

const (
	// ContextUninitialized means no context has been created yet
	ContextUninitialized ContextState = iota

	// ContextSuspended means the context exists but produces no output
	ContextSuspended

	// ContextRunning means the context is producing output
	ContextRunning

	// ContextClosed means the context has been torn down; handles bound
	// to it are unusable until rebuilt against a new context
	ContextClosed
)

// String returns a human-readable representation of the context state.
func (s ContextState) String() string {
	switch s {
	case ContextUninitialized:
		return "uninitialized"
	case ContextSuspended:
		return "suspended"
	case ContextRunning:
		return "running"
	case ContextClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LaneState is the externally visible state of one playback lane.
type LaneState struct {
	// IsPlaying reports whether the lane is audibly playing
	IsPlaying bool

	// Volume is the lane volume, 0-100
	Volume int

	// CurrentIndex is the position in the category's track list
	CurrentIndex int

	// TrackTitle is the title of the current track, for display
	TrackTitle string
}

// PlayerState is the single snapshot exposed to the view layer.
type PlayerState struct {
	// Lanes holds per-category lane state
	Lanes map[Category]LaneState

	// Initialized reports whether the catalogs have been loaded
	Initialized bool

	// Err is the single current error message, empty when healthy
	Err string
}

// Lane returns the state for one category, zero value if absent.
func (s PlayerState) Lane(c Category) LaneState {
	return s.Lanes[c]
}

// PlaybackRecord is the cached playback state persisted per resolved URL.
type PlaybackRecord struct {
	// Volume is the lane volume (0-100) when the record was written
	Volume int

	// IsPlaying reports whether the track was playing at sync time
	IsPlaying bool

	// Position is the playback position at sync time
	Position time.Duration

	// LastSync is when the record was written; records older than
	// CacheRetention are purged at cache open
	LastSync time.Time
}

// CacheRetention is how long cached audio and playback records are kept.
const CacheRetention = 7 * 24 * time.Hour

// MinVolume and MaxVolume bound the integer lane volume scale.
const (
	MinVolume = 0
	MaxVolume = 100
)

// ClampVolume normalizes a volume into the 0-100 range.
func ClampVolume(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// VolumeGain maps an integer lane volume to the linear gain applied to
// both the media source and its gain node.
func VolumeGain(v int) float64 {
	return float64(ClampVolume(v)) / float64(MaxVolume)
}
