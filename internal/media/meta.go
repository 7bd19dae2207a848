// Package media extracts display metadata from cached audio files.
package media

import (
	"os"

	"github.com/dhowden/tag"

	"github.com/quietroom/quietroom/internal/domain"
)

// Describe backfills Title and Artist on track from the tags embedded in
// the audio file at path. A readable embedded title wins over the
// filename-derived one; the artist is filled only when empty. Files
// without readable tags leave the track untouched.
func Describe(path string, track *domain.Track) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return
	}

	if title := meta.Title(); title != "" {
		track.Title = title
	}
	if track.Artist == "" {
		track.Artist = meta.Artist()
	}
}
