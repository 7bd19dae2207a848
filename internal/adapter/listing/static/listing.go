// Package static provides a TrackListing backed by a fixed in-process
// table. It backs degraded mode when the remote listing is unreachable,
// and doubles as a deterministic listing for tests.
package static

import (
	"context"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/ports"
)

// Listing serves a fixed set of tracks per category.
type Listing struct {
	tracks map[domain.Category][]domain.Track
}

// NewListing creates a listing over the given tracks. The input map is not
// copied; callers hand over ownership.
func NewListing(tracks map[domain.Category][]domain.Track) *Listing {
	if tracks == nil {
		tracks = make(map[domain.Category][]domain.Track)
	}
	return &Listing{tracks: tracks}
}

// NewPlaceholderListing creates the degraded-mode listing: one bundled
// placeholder track per category, resolved against baseURL.
func NewPlaceholderListing(baseURL string) *Listing {
	if baseURL == "" {
		baseURL = "https://cdn.quietroom.app"
	}
	tracks := make(map[domain.Category][]domain.Track)
	for _, category := range domain.Categories() {
		key := string(category) + "/placeholder.mp3"
		tracks[category] = []domain.Track{{
			ID:          key,
			Title:       "Placeholder",
			Category:    category,
			SourceKey:   key,
			PlayableURL: baseURL + "/" + key,
		}}
	}
	return &Listing{tracks: tracks}
}

// ListTracks returns a copy of the tracks for category.
func (l *Listing) ListTracks(_ context.Context, category domain.Category) ([]domain.Track, error) {
	tracks, ok := l.tracks[category]
	if !ok || len(tracks) == 0 {
		return nil, domain.ErrEmptyCategory
	}
	out := make([]domain.Track, len(tracks))
	copy(out, tracks)
	return out, nil
}

// Verify that Listing implements the TrackListing interface
var _ ports.TrackListing = (*Listing)(nil)
