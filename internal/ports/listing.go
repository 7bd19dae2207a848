// Package ports define the TrackListing interface for the storage backend.
package ports

import (
	"context"

	"github.com/quietroom/quietroom/internal/domain"
)

// TrackListing enumerates the playable tracks of a category from the
// storage backend. The controller treats the listing as an external
// collaborator: when it fails or returns nothing, playback degrades to a
// bundled placeholder track instead of failing.
//
// Implementations must be safe for concurrent use.
type TrackListing interface {
	// ListTracks returns the ordered track descriptors for a category.
	// Descriptors carry identity only (title, artist, source key); URLs are
	// resolved separately.
	//
	// Returns domain.ErrListingUnavailable (possibly wrapped) when the
	// backend cannot be reached.
	ListTracks(ctx context.Context, category domain.Category) ([]domain.Track, error)
}
