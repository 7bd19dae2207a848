package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietroom/quietroom/internal/domain"
)

func makeTracks(category domain.Category, n int) []domain.Track {
	tracks := make([]domain.Track, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%s/track-%02d.mp3", category, i)
		tracks = append(tracks, domain.Track{
			ID:        key,
			Title:     fmt.Sprintf("Track %02d", i),
			Category:  category,
			SourceKey: key,
		})
	}
	return tracks
}

func TestCatalog_ReplaceAndLen(t *testing.T) {
	catalog := NewCatalog()

	assert.Equal(t, 0, catalog.Len(domain.CategoryBrown))

	catalog.Replace(domain.CategoryBrown, makeTracks(domain.CategoryBrown, 5))
	assert.Equal(t, 5, catalog.Len(domain.CategoryBrown))
	assert.Equal(t, 0, catalog.Len(domain.CategoryRain))

	// Replace installs a whole new list.
	catalog.Replace(domain.CategoryBrown, makeTracks(domain.CategoryBrown, 2))
	assert.Equal(t, 2, catalog.Len(domain.CategoryBrown))
}

func TestCatalog_At_NormalizesIndex(t *testing.T) {
	catalog := NewCatalog()
	catalog.Replace(domain.CategoryRain, makeTracks(domain.CategoryRain, 3))

	first, err := catalog.At(domain.CategoryRain, 0)
	require.NoError(t, err)

	// Out-of-range indexes wrap instead of faulting, so an index left
	// over from a longer list still lands on a valid track.
	wrapped, err := catalog.At(domain.CategoryRain, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, wrapped.ID)

	far, err := catalog.At(domain.CategoryRain, 7)
	require.NoError(t, err)
	assert.Equal(t, "rain/track-01.mp3", far.ID)

	negative, err := catalog.At(domain.CategoryRain, -1)
	require.NoError(t, err)
	assert.Equal(t, "rain/track-02.mp3", negative.ID)
}

func TestCatalog_At_EmptyCategory(t *testing.T) {
	catalog := NewCatalog()

	_, err := catalog.At(domain.CategoryBrown, 0)
	assert.ErrorIs(t, err, domain.ErrEmptyCategory)
}

func TestCatalog_Next_Cyclic(t *testing.T) {
	catalog := NewCatalog()
	catalog.Replace(domain.CategoryBrown, makeTracks(domain.CategoryBrown, 3))

	track, index, err := catalog.Next(domain.CategoryBrown, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, "brown/track-01.mp3", track.ID)

	// Advancing past the end wraps to the start.
	track, index, err = catalog.Next(domain.CategoryBrown, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, index)
	assert.Equal(t, "brown/track-00.mp3", track.ID)

	_, _, err = catalog.Next(domain.CategoryRain, 0)
	assert.ErrorIs(t, err, domain.ErrEmptyCategory)
}

func TestCatalog_Next_SingleTrack(t *testing.T) {
	catalog := NewCatalog()
	catalog.Replace(domain.CategoryRain, makeTracks(domain.CategoryRain, 1))

	track, index, err := catalog.Next(domain.CategoryRain, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, index)
	assert.Equal(t, "rain/track-00.mp3", track.ID)
}

func TestCatalog_Shuffle_IsPermutation(t *testing.T) {
	catalog := NewCatalog()
	original := makeTracks(domain.CategoryBrown, 20)
	catalog.Replace(domain.CategoryBrown, original)

	catalog.Shuffle(domain.CategoryBrown)
	shuffled := catalog.Tracks(domain.CategoryBrown)

	require.Len(t, shuffled, len(original))

	// Same multiset of tracks, only the order may differ.
	seen := make(map[string]int)
	for _, track := range original {
		seen[track.ID]++
	}
	for _, track := range shuffled {
		seen[track.ID]--
	}
	for id, count := range seen {
		assert.Zerof(t, count, "track %s count mismatch after shuffle", id)
	}
}

func TestCatalog_Shuffle_ReplacesSlice(t *testing.T) {
	catalog := NewCatalog()
	catalog.Replace(domain.CategoryRain, makeTracks(domain.CategoryRain, 10))

	before := catalog.Tracks(domain.CategoryRain)
	catalog.Shuffle(domain.CategoryRain)
	after := catalog.Tracks(domain.CategoryRain)

	// The pre-shuffle copy is untouched by the shuffle.
	for i, track := range makeTracks(domain.CategoryRain, 10) {
		assert.Equal(t, track.ID, before[i].ID)
	}
	require.Len(t, after, 10)
}

func TestCatalog_Shuffle_EmptyAndSingle(t *testing.T) {
	catalog := NewCatalog()

	// Neither should panic.
	catalog.Shuffle(domain.CategoryBrown)

	catalog.Replace(domain.CategoryBrown, makeTracks(domain.CategoryBrown, 1))
	catalog.Shuffle(domain.CategoryBrown)
	assert.Equal(t, 1, catalog.Len(domain.CategoryBrown))
}
