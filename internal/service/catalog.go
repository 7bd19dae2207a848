// Package service provides business logic for the QuietRoom application.
package service

import (
	"math/rand"
	"sync"
	"time"

	"github.com/quietroom/quietroom/internal/domain"
)

// Catalog holds the ordered track list for each category and provides
// cyclic navigation and shuffling.
//
// A shuffle replaces the stored slice with a new one; track values are
// never mutated, only reordered. All operations are thread-safe.
type Catalog struct {
	mu    sync.RWMutex
	lists map[domain.Category][]domain.Track
	rng   *rand.Rand // guarded by mu
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		lists: make(map[domain.Category][]domain.Track),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Replace installs a new ordered list for a category.
func (c *Catalog) Replace(category domain.Category, tracks []domain.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]domain.Track, len(tracks))
	copy(list, tracks)
	c.lists[category] = list
}

// Len returns the number of tracks in a category.
func (c *Catalog) Len(category domain.Category) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.lists[category])
}

// At returns the track at index, normalized into range via modulo so that
// index drift after a shuffle shrinks or reorders the list never faults.
func (c *Catalog) At(category domain.Category, index int) (domain.Track, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.lists[category]
	if len(list) == 0 {
		return domain.Track{}, domain.ErrEmptyCategory
	}

	return list[normalize(index, len(list))], nil
}

// Next returns the track after currentIndex and its index, wrapping
// cyclically.
func (c *Catalog) Next(category domain.Category, currentIndex int) (domain.Track, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.lists[category]
	if len(list) == 0 {
		return domain.Track{}, 0, domain.ErrEmptyCategory
	}

	next := normalize(currentIndex+1, len(list))
	return list[next], next, nil
}

// Shuffle reorders a category with a Fisher-Yates shuffle, replacing the
// stored list. The multiset of tracks is unchanged, only their order.
func (c *Catalog) Shuffle(category domain.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.lists[category]
	if len(old) <= 1 {
		return
	}

	list := make([]domain.Track, len(old))
	copy(list, old)

	for i := len(list) - 1; i > 0; i-- {
		j := c.rng.Intn(i + 1)
		list[i], list[j] = list[j], list[i]
	}

	c.lists[category] = list
}

// Tracks returns a copy of the category's current ordered list.
func (c *Catalog) Tracks(category domain.Category) []domain.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.lists[category]
	out := make([]domain.Track, len(list))
	copy(out, list)
	return out
}

// normalize maps any integer index into [0, length).
func normalize(index, length int) int {
	i := index % length
	if i < 0 {
		i += length
	}
	return i
}
