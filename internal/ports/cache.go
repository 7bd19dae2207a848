// Package ports define the PlaybackCache interface for local persistence.
package ports

import (
	"io"
	"time"

	"github.com/quietroom/quietroom/internal/domain"
)

// PlaybackCache persists downloaded audio bytes and last-known playback
// state, keyed by resolved track URL. Caching is an optimization, not a
// correctness requirement: every call is best-effort and callers log and
// swallow failures.
//
// Implementations must be thread-safe.
type PlaybackCache interface {
	// PlaybackState returns the cached record for a URL, if any.
	PlaybackState(url string) (domain.PlaybackRecord, bool)

	// SetPlaybackState writes the record for a URL, stamping LastSync.
	SetPlaybackState(url string, record domain.PlaybackRecord) error

	// Audio returns the local path of cached audio bytes for a URL, if
	// present and still on disk.
	Audio(url string) (path string, ok bool)

	// PutAudio stores the audio bytes read from r under the URL and
	// returns the local path they were written to.
	PutAudio(url string, r io.Reader) (path string, err error)

	// PurgeOlderThan removes audio and playback records whose LastSync is
	// older than the retention window. Called at cache open.
	PurgeOlderThan(retention time.Duration) error

	// Close releases the underlying store.
	Close() error
}
