// Package sqlite provides a PlaybackCache backed by a SQLite index with
// audio bytes stored as files next to it. Records older than the retention
// window are purged when the cache is opened.
package sqlite

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/ports"
)

// Cache is the on-disk playback cache.
type Cache struct {
	mu     sync.RWMutex
	db     *sql.DB
	dir    string
	logger *slog.Logger
}

// Open opens or creates the cache under dir and purges entries older than
// domain.CacheRetention.
func Open(dir string, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, "audio"), 0o755); err != nil {
		return nil, domain.NewCacheError("open", dir, "create cache directory", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "cache.db"))
	if err != nil {
		return nil, domain.NewCacheError("open", dir, "open database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domain.NewCacheError("open", dir, "set pragma", err)
		}
	}

	c := &Cache{db: db, dir: dir, logger: logger}
	if err := c.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := c.PurgeOlderThan(domain.CacheRetention); err != nil && logger != nil {
		// Purge failure is not fatal; stale entries just linger.
		logger.Warn("cache purge failed", slog.String("error", err.Error()))
	}
	return c, nil
}

func (c *Cache) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS playback_state (
			url TEXT PRIMARY KEY,
			volume INTEGER NOT NULL,
			is_playing INTEGER NOT NULL DEFAULT 0,
			position_ns INTEGER NOT NULL DEFAULT 0,
			last_sync DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audio_files (
			url TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			last_sync DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playback_last_sync ON playback_state(last_sync)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_last_sync ON audio_files(last_sync)`,
	}
	for _, query := range queries {
		if _, err := c.db.Exec(query); err != nil {
			return domain.NewCacheError("open", c.dir, "create tables", err)
		}
	}
	return nil
}

// PlaybackState returns the cached record for a URL, if any.
func (c *Cache) PlaybackState(url string) (domain.PlaybackRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		record     domain.PlaybackRecord
		isPlaying  int
		positionNS int64
	)
	err := c.db.QueryRow(
		`SELECT volume, is_playing, position_ns, last_sync FROM playback_state WHERE url = ?`,
		url,
	).Scan(&record.Volume, &isPlaying, &positionNS, &record.LastSync)
	if err != nil {
		return domain.PlaybackRecord{}, false
	}

	record.IsPlaying = isPlaying != 0
	record.Position = time.Duration(positionNS)
	return record, true
}

// SetPlaybackState writes the record for a URL, stamping LastSync.
func (c *Cache) SetPlaybackState(url string, record domain.PlaybackRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	isPlaying := 0
	if record.IsPlaying {
		isPlaying = 1
	}

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO playback_state (url, volume, is_playing, position_ns, last_sync)
		VALUES (?, ?, ?, ?, ?)
	`, url, domain.ClampVolume(record.Volume), isPlaying, int64(record.Position), time.Now())
	if err != nil {
		return domain.NewCacheError("set_state", url, "write record", err)
	}
	return nil
}

// Audio returns the local path of cached audio for a URL when the index
// entry exists and the file is still on disk.
func (c *Cache) Audio(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var path string
	err := c.db.QueryRow(`SELECT file_path FROM audio_files WHERE url = ?`, url).Scan(&path)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// PutAudio stores the bytes read from r under the URL and returns the
// local file path. The index row is written only after the file is fully
// on disk.
func (c *Cache) PutAudio(url string, r io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, "audio", hashKey(url))

	f, err := os.Create(path)
	if err != nil {
		return "", domain.NewCacheError("put_audio", url, "create file", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", domain.NewCacheError("put_audio", url, "write file", err)
	}

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO audio_files (url, file_path, size, last_sync)
		VALUES (?, ?, ?, ?)
	`, url, path, size, time.Now())
	if err != nil {
		os.Remove(path)
		return "", domain.NewCacheError("put_audio", url, "write index", err)
	}

	if c.logger != nil {
		c.logger.Debug("audio cached",
			slog.String("url", url),
			slog.Int64("bytes", size))
	}
	return path, nil
}

// PurgeOlderThan removes playback records and audio files whose LastSync
// is older than retention.
func (c *Cache) PurgeOlderThan(retention time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-retention)

	rows, err := c.db.Query(`SELECT file_path FROM audio_files WHERE last_sync < ?`, cutoff)
	if err != nil {
		return domain.NewCacheError("purge", c.dir, "query stale audio", err)
	}

	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err == nil {
			stale = append(stale, path)
		}
	}
	rows.Close()

	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && c.logger != nil {
			c.logger.Warn("stale audio removal failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	if _, err := c.db.Exec(`DELETE FROM audio_files WHERE last_sync < ?`, cutoff); err != nil {
		return domain.NewCacheError("purge", c.dir, "delete stale audio index", err)
	}
	if _, err := c.db.Exec(`DELETE FROM playback_state WHERE last_sync < ?`, cutoff); err != nil {
		return domain.NewCacheError("purge", c.dir, "delete stale records", err)
	}

	if c.logger != nil && len(stale) > 0 {
		c.logger.Info("stale cache entries purged", slog.Int("count", len(stale)))
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// hashKey maps a URL to a stable filename.
func hashKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Verify that Cache implements the PlaybackCache interface
var _ ports.PlaybackCache = (*Cache)(nil)
