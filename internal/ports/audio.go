// Package ports define interfaces for dependency inversion.
// These interfaces allow the core business logic to remain independent of external frameworks.
package ports

import (
	"time"

	"github.com/quietroom/quietroom/internal/domain"
)

// AudioEngine is the interface for the audio playback backend.
// It owns the shared audio context and all direct graph manipulation; it has
// no knowledge of categories, catalogs, or the view.
//
// Context invariant: EnsureContext (and any operation that may create or
// resume the context) must only be reached from a user-initiated call chain.
// The controller honors this by touching the engine only inside its
// user-facing operations.
//
// Implementations must be thread-safe.
type AudioEngine interface {
	// EnsureContext makes sure a running audio context exists, creating a
	// new one if none exists or the previous one was closed, and resuming
	// a suspended one.
	//
	// Returns domain.ErrContextUnavailable when the platform denies
	// creation or resumption; the caller should retry on the next user
	// action.
	EnsureContext() error

	// ContextState reports the current lifecycle state of the shared context.
	ContextState() domain.ContextState

	// CreateSource builds a looping audio source for url with its gain node
	// set to volume/100 and connects it, paused, to the shared destination.
	// url may be a local file path (cache hit) or an http(s) URL.
	//
	// Returns a *domain.SourceLoadError when the url cannot be fetched or
	// decoded; the caller decides whether to substitute a fallback URL.
	CreateSource(url string, volume int) (domain.SourceHandle, error)

	// Play starts or resumes the source. Idempotent: a no-op when already
	// playing. If the underlying start is rejected, the engine resumes the
	// context and retries exactly once; a second rejection returns
	// domain.ErrPlaybackRejected.
	Play(handle domain.SourceHandle) error

	// Pause pauses the source. Idempotent: a no-op when already paused.
	Pause(handle domain.SourceHandle) error

	// SetVolume applies volume (0-100) to both the media source and its
	// gain node, cancelling any pending scheduled ramps first. A handle
	// bound to a closed context is rebuilt against the current context
	// before the value is applied.
	SetVolume(handle domain.SourceHandle, volume int) error

	// Volume returns the configured volume (0-100) of the source.
	Volume(handle domain.SourceHandle) (int, error)

	// IsPlaying reports whether the source is currently unpaused.
	IsPlaying(handle domain.SourceHandle) (bool, error)

	// Position reports the playback position within the source's current
	// loop iteration. A source rebuilt against a fresh context restarts
	// at zero.
	Position(handle domain.SourceHandle) (time.Duration, error)

	// Crossfade starts incoming at volume zero and ramps it up while
	// ramping outgoing down over duration, sampling the ramp endpoints on
	// every tick so concurrent volume changes rescale the fade. On
	// completion outgoing is paused and detached and onDone(true) is
	// invoked; a fade superseded by a newer operation stops early and
	// invokes onDone(false).
	//
	// When outgoing is already paused the call degrades to Play(incoming)
	// and onDone(true) is invoked immediately.
	Crossfade(outgoing, incoming domain.SourceHandle, duration time.Duration, onDone func(completed bool)) error

	// Release pauses, detaches, and frees the source. Releasing an already
	// released or invalid handle is a no-op.
	Release(handle domain.SourceHandle) error

	// Cleanup closes the context if open and releases all sources. Idempotent.
	Cleanup() error
}
