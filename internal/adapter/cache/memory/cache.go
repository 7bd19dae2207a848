// Package memory provides an in-memory PlaybackCache. Audio bytes go to a
// temporary directory; nothing survives the process. Intended for tests
// and for running without a writable cache directory.
package memory

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/ports"
)

// Cache is a volatile playback cache.
type Cache struct {
	mu      sync.RWMutex
	records map[string]domain.PlaybackRecord
	audio   map[string]audioEntry
	dir     string
}

type audioEntry struct {
	path     string
	lastSync time.Time
}

// NewCache creates an empty cache writing audio files under dir. An empty
// dir falls back to the system temp directory.
func NewCache(dir string) *Cache {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Cache{
		records: make(map[string]domain.PlaybackRecord),
		audio:   make(map[string]audioEntry),
		dir:     dir,
	}
}

// PlaybackState returns the record for a URL, if any.
func (c *Cache) PlaybackState(url string) (domain.PlaybackRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.records[url]
	return record, ok
}

// SetPlaybackState writes the record for a URL, stamping LastSync.
func (c *Cache) SetPlaybackState(url string, record domain.PlaybackRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record.Volume = domain.ClampVolume(record.Volume)
	record.LastSync = time.Now()
	c.records[url] = record
	return nil
}

// Audio returns the file path for cached audio, if present.
func (c *Cache) Audio(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.audio[url]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(entry.path); err != nil {
		return "", false
	}
	return entry.path, true
}

// PutAudio writes the bytes from r to a file and indexes it under the URL.
func (c *Cache) PutAudio(url string, r io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, uuid.NewString())

	f, err := os.Create(path)
	if err != nil {
		return "", domain.NewCacheError("put_audio", url, "create file", err)
	}

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", domain.NewCacheError("put_audio", url, "write file", err)
	}

	c.audio[url] = audioEntry{path: path, lastSync: time.Now()}
	return path, nil
}

// PurgeOlderThan drops entries whose LastSync is older than retention.
func (c *Cache) PurgeOlderThan(retention time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	for url, record := range c.records {
		if record.LastSync.Before(cutoff) {
			delete(c.records, url)
		}
	}
	for url, entry := range c.audio {
		if entry.lastSync.Before(cutoff) {
			os.Remove(entry.path)
			delete(c.audio, url)
		}
	}
	return nil
}

// Close removes all cached audio files.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url, entry := range c.audio {
		os.Remove(entry.path)
		delete(c.audio, url)
	}
	return nil
}

// Verify that Cache implements the PlaybackCache interface
var _ ports.PlaybackCache = (*Cache)(nil)
