package sqlite

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/logger"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()

	cache, err := Open(t.TempDir(), logger.NewTestLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/cache"

	cache, err := Open(dir, logger.NewTestLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	if _, err := os.Stat(dir + "/audio"); err != nil {
		t.Errorf("audio directory not created: %v", err)
	}
}

func TestPlaybackStateRoundTrip(t *testing.T) {
	cache := openTestCache(t)

	if _, ok := cache.PlaybackState("https://cdn.example.com/a.mp3"); ok {
		t.Fatal("expected no record for unknown URL")
	}

	record := domain.PlaybackRecord{
		Volume:    65,
		IsPlaying: true,
		Position:  90 * time.Second,
	}
	if err := cache.SetPlaybackState("https://cdn.example.com/a.mp3", record); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	got, ok := cache.PlaybackState("https://cdn.example.com/a.mp3")
	if !ok {
		t.Fatal("expected a record")
	}
	if got.Volume != 65 || !got.IsPlaying || got.Position != 90*time.Second {
		t.Errorf("unexpected record %+v", got)
	}
	if got.LastSync.IsZero() {
		t.Error("LastSync was not stamped")
	}
}

func TestSetPlaybackStateOverwrites(t *testing.T) {
	cache := openTestCache(t)

	if err := cache.SetPlaybackState("url", domain.PlaybackRecord{Volume: 10}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}
	if err := cache.SetPlaybackState("url", domain.PlaybackRecord{Volume: 90}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	record, _ := cache.PlaybackState("url")
	if record.Volume != 90 {
		t.Errorf("expected overwritten volume, got %d", record.Volume)
	}
}

func TestPutAudioAndLookup(t *testing.T) {
	cache := openTestCache(t)

	path, err := cache.PutAudio("https://cdn.example.com/a.mp3", strings.NewReader("audio bytes"))
	if err != nil {
		t.Fatalf("PutAudio failed: %v", err)
	}

	got, ok := cache.Audio("https://cdn.example.com/a.mp3")
	if !ok || got != path {
		t.Fatalf("Audio returned (%q, %v), expected (%q, true)", got, ok, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}
	if string(data) != "audio bytes" {
		t.Errorf("cached bytes mismatch: %q", data)
	}

	// Same URL maps to the same file.
	again, err := cache.PutAudio("https://cdn.example.com/a.mp3", strings.NewReader("newer"))
	if err != nil {
		t.Fatalf("PutAudio failed: %v", err)
	}
	if again != path {
		t.Errorf("expected a stable path per URL, got %q and %q", path, again)
	}
}

func TestAudioMissesWhenFileGone(t *testing.T) {
	cache := openTestCache(t)

	path, err := cache.PutAudio("url", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("PutAudio failed: %v", err)
	}
	os.Remove(path)

	if _, ok := cache.Audio("url"); ok {
		t.Error("expected miss after the file was removed")
	}
}

func TestPurgeOlderThan(t *testing.T) {
	cache := openTestCache(t)

	if err := cache.SetPlaybackState("old", domain.PlaybackRecord{Volume: 10}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}
	path, err := cache.PutAudio("old", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("PutAudio failed: %v", err)
	}

	time.Sleep(time.Millisecond)
	if err := cache.PurgeOlderThan(0); err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}

	if _, ok := cache.PlaybackState("old"); ok {
		t.Error("expected record to be purged")
	}
	if _, ok := cache.Audio("old"); ok {
		t.Error("expected audio entry to be purged")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected audio file to be deleted")
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()

	cache, err := Open(dir, logger.NewTestLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := cache.SetPlaybackState("url", domain.PlaybackRecord{Volume: 55}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(dir, logger.NewTestLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	record, ok := reopened.PlaybackState("url")
	if !ok {
		t.Fatal("record lost across reopen")
	}
	if record.Volume != 55 {
		t.Errorf("unexpected volume %d", record.Volume)
	}
}
