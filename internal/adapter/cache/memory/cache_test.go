package memory

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/quietroom/quietroom/internal/domain"
)

func TestPlaybackStateRoundTrip(t *testing.T) {
	cache := NewCache(t.TempDir())

	if _, ok := cache.PlaybackState("https://cdn.example.com/a.mp3"); ok {
		t.Fatal("expected no record for unknown URL")
	}

	err := cache.SetPlaybackState("https://cdn.example.com/a.mp3", domain.PlaybackRecord{
		Volume:    70,
		IsPlaying: true,
	})
	if err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	record, ok := cache.PlaybackState("https://cdn.example.com/a.mp3")
	if !ok {
		t.Fatal("expected a record")
	}
	if record.Volume != 70 || !record.IsPlaying {
		t.Errorf("unexpected record %+v", record)
	}
	if record.LastSync.IsZero() {
		t.Error("LastSync was not stamped")
	}
}

func TestSetPlaybackStateClampsVolume(t *testing.T) {
	cache := NewCache(t.TempDir())

	if err := cache.SetPlaybackState("url", domain.PlaybackRecord{Volume: 300}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	record, _ := cache.PlaybackState("url")
	if record.Volume != domain.MaxVolume {
		t.Errorf("expected clamped volume, got %d", record.Volume)
	}
}

func TestPutAudioAndLookup(t *testing.T) {
	cache := NewCache(t.TempDir())

	if _, ok := cache.Audio("https://cdn.example.com/a.mp3"); ok {
		t.Fatal("expected miss for unknown URL")
	}

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
}

func TestAudioMissesWhenFileGone(t *testing.T) {
	cache := NewCache(t.TempDir())

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
	cache := NewCache(t.TempDir())

	if err := cache.SetPlaybackState("old", domain.PlaybackRecord{Volume: 10}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}
	path, err := cache.PutAudio("old", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("PutAudio failed: %v", err)
	}

	// Zero retention makes everything older than the cutoff.
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

func TestPurgeKeepsFreshEntries(t *testing.T) {
	cache := NewCache(t.TempDir())

	if err := cache.SetPlaybackState("fresh", domain.PlaybackRecord{Volume: 10}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	if err := cache.PurgeOlderThan(domain.CacheRetention); err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}

	if _, ok := cache.PlaybackState("fresh"); !ok {
		t.Error("fresh record was purged")
	}
}

func TestCloseRemovesAudioFiles(t *testing.T) {
	cache := NewCache(t.TempDir())

	path, err := cache.PutAudio("url", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("PutAudio failed: %v", err)
	}

	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected audio file to be deleted on close")
	}
}
