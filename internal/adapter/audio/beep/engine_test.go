// Package beep tests run against the real speaker backend.
//
// NOTE: The tests that open the shared context need an audio output device
// (ALSA/PulseAudio on Linux, CoreAudio on macOS). On headless machines they
// skip themselves; the decode, gain-mapping, and gate tests always run.
package beep

import (
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietroom/quietroom/internal/domain"
)

// minimalWAV builds a silent mono 16-bit PCM WAV payload.
func minimalWAV(sampleRate, numSamples int) []byte {
	dataSize := numSamples * 2
	wav := make([]byte, 44+dataSize)

	copy(wav[0:4], "RIFF")
	writeUint32LE(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	writeUint32LE(wav[16:20], 16)
	writeUint16LE(wav[20:22], 1) // PCM
	writeUint16LE(wav[22:24], 1) // mono
	writeUint32LE(wav[24:28], uint32(sampleRate))
	writeUint32LE(wav[28:32], uint32(sampleRate*2))
	writeUint16LE(wav[32:34], 2)
	writeUint16LE(wav[34:36], 16)

	copy(wav[36:40], "data")
	writeUint32LE(wav[40:44], uint32(dataSize))
	return wav
}

func writeUint32LE(buf []byte, val uint32) {
	buf[0] = byte(val)
	buf[1] = byte(val >> 8)
	buf[2] = byte(val >> 16)
	buf[3] = byte(val >> 24)
}

func writeUint16LE(buf []byte, val uint16) {
	buf[0] = byte(val)
	buf[1] = byte(val >> 8)
}

// writeTestWAV writes a WAV fixture into a per-test directory.
func writeTestWAV(t *testing.T, name string, sampleRate, numSamples int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, minimalWAV(sampleRate, numSamples), 0o600))
	return path
}

// newSpeakerEngine returns an engine with a running context, skipping the
// test when the host has no audio output device.
func newSpeakerEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine(44100, time.Second)
	if err := engine.EnsureContext(); err != nil {
		t.Skipf("No audio device available: %v", err)
	}
	t.Cleanup(func() { _ = engine.Cleanup() })
	return engine
}

// sourceState reads the live chain nodes of a source under both locks.
func sourceState(e *Engine, handle domain.SourceHandle) (gain float64, silent, paused, open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := e.sources[handle]
	speaker.Lock()
	defer speaker.Unlock()
	return src.vol.Volume, src.vol.Silent, src.ctrl.Paused, src.gate.open
}

func TestSetGainMapping(t *testing.T) {
	vol := &effects.Volume{Base: 2}

	setGain(vol, 1)
	assert.False(t, vol.Silent)
	assert.Equal(t, 0.0, vol.Volume)

	setGain(vol, 0.5)
	assert.False(t, vol.Silent)
	assert.InDelta(t, -1.0, vol.Volume, 1e-9)

	setGain(vol, 0.25)
	assert.InDelta(t, -2.0, vol.Volume, 1e-9)

	setGain(vol, 0)
	assert.True(t, vol.Silent)

	setGain(vol, -0.3)
	assert.True(t, vol.Silent)
}

func TestGateDetachesChain(t *testing.T) {
	g := &gate{streamer: beep.Silence(16), open: true}

	samples := make([][2]float64, 16)
	n, ok := g.Stream(samples)
	assert.Equal(t, 16, n)
	assert.True(t, ok)

	// A closed gate reports itself drained so the mixer drops it.
	g.close()
	n, ok = g.Stream(samples)
	assert.Equal(t, 0, n)
	assert.False(t, ok)
	assert.NoError(t, g.Err())
}

func TestSourceExt(t *testing.T) {
	assert.Equal(t, ".wav", sourceExt("https://cdn.example/rain/loop.wav"))
	assert.Equal(t, ".mp3", sourceExt("/var/cache/brown-00.mp3"))
	assert.Equal(t, ".wav", sourceExt("https://cdn.example/a.wav?X-Amz-Signature=abc"))
	assert.Equal(t, ".wav", sourceExt("/tmp/LOOP.WAV"))
	assert.Equal(t, "", sourceExt("https://cdn.example/stream"))
}

func TestFetchAndDecodeLocalWAV(t *testing.T) {
	engine := NewEngine(44100, time.Second)
	path := writeTestWAV(t, "loop.wav", 44100, 4410)

	buffer, err := engine.fetchAndDecode(path)
	require.NoError(t, err)
	assert.Equal(t, 4410, buffer.Len())
	assert.Equal(t, beep.SampleRate(44100), buffer.Format().SampleRate)

	// file:// URLs resolve to the same path.
	buffer, err = engine.fetchAndDecode("file://" + path)
	require.NoError(t, err)
	assert.Equal(t, 4410, buffer.Len())
}

func TestFetchAndDecodeHTTP(t *testing.T) {
	engine := NewEngine(44100, time.Second)
	payload := minimalWAV(44100, 2205)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rain/loop.wav" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	buffer, err := engine.fetchAndDecode(server.URL + "/rain/loop.wav")
	require.NoError(t, err)
	assert.Equal(t, 2205, buffer.Len())

	_, err = engine.fetchAndDecode(server.URL + "/missing.wav")
	var loadErr *domain.SourceLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestFetchAndDecodeFailures(t *testing.T) {
	engine := NewEngine(44100, time.Second)

	var loadErr *domain.SourceLoadError
	_, err := engine.fetchAndDecode("/nonexistent/loop.wav")
	require.ErrorAs(t, err, &loadErr)

	garbage := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("not audio"), 0o600))
	_, err = engine.fetchAndDecode(garbage)
	require.ErrorAs(t, err, &loadErr)
}

func TestCreateSourceDecodeFailureNeedsNoContext(t *testing.T) {
	engine := NewEngine(44100, time.Second)

	handle, err := engine.CreateSource("/nonexistent/loop.wav", 50)
	assert.Equal(t, domain.InvalidSourceHandle, handle)
	var loadErr *domain.SourceLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestUnknownHandleErrors(t *testing.T) {
	engine := NewEngine(44100, time.Second)
	ghost := domain.SourceHandle(9999)

	assert.ErrorIs(t, engine.Play(ghost), domain.ErrInvalidSourceHandle)
	assert.ErrorIs(t, engine.Pause(ghost), domain.ErrInvalidSourceHandle)
	assert.ErrorIs(t, engine.SetVolume(ghost, 50), domain.ErrInvalidSourceHandle)

	_, err := engine.Volume(ghost)
	assert.ErrorIs(t, err, domain.ErrInvalidSourceHandle)
	_, err = engine.IsPlaying(ghost)
	assert.ErrorIs(t, err, domain.ErrInvalidSourceHandle)
	_, err = engine.Position(ghost)
	assert.ErrorIs(t, err, domain.ErrInvalidSourceHandle)
}

func TestCreateSourceBuildsPausedChain(t *testing.T) {
	engine := newSpeakerEngine(t)
	path := writeTestWAV(t, "loop.wav", 44100, 4410)

	handle, err := engine.CreateSource(path, 60)
	require.NoError(t, err)
	require.NotEqual(t, domain.InvalidSourceHandle, handle)

	playing, err := engine.IsPlaying(handle)
	require.NoError(t, err)
	assert.False(t, playing, "a fresh source connects paused")

	volume, err := engine.Volume(handle)
	require.NoError(t, err)
	assert.Equal(t, 60, volume)

	gain, silent, paused, open := sourceState(engine, handle)
	assert.InDelta(t, math.Log2(0.6), gain, 1e-9)
	assert.False(t, silent)
	assert.True(t, paused)
	assert.True(t, open)

	require.NoError(t, engine.Play(handle))
	playing, _ = engine.IsPlaying(handle)
	assert.True(t, playing)

	require.NoError(t, engine.Pause(handle))
	playing, _ = engine.IsPlaying(handle)
	assert.False(t, playing)
}

func TestSetVolumeAppliesGain(t *testing.T) {
	engine := newSpeakerEngine(t)
	path := writeTestWAV(t, "loop.wav", 44100, 4410)

	handle, err := engine.CreateSource(path, 50)
	require.NoError(t, err)

	require.NoError(t, engine.SetVolume(handle, 25))
	gain, silent, _, _ := sourceState(engine, handle)
	assert.InDelta(t, math.Log2(0.25), gain, 1e-9)
	assert.False(t, silent)

	// Zero mutes the node rather than chasing negative infinity.
	require.NoError(t, engine.SetVolume(handle, 0))
	_, silent, _, _ = sourceState(engine, handle)
	assert.True(t, silent)

	assert.ErrorIs(t, engine.SetVolume(handle, 101), domain.ErrInvalidVolume)
	assert.ErrorIs(t, engine.SetVolume(handle, -1), domain.ErrInvalidVolume)
	volume, _ := engine.Volume(handle)
	assert.Equal(t, 0, volume)
}

func TestCrossfadeEndpoints(t *testing.T) {
	engine := newSpeakerEngine(t)
	outPath := writeTestWAV(t, "out.wav", 44100, 44100)
	inPath := writeTestWAV(t, "in.wav", 44100, 44100)

	out, err := engine.CreateSource(outPath, 60)
	require.NoError(t, err)
	in, err := engine.CreateSource(inPath, 80)
	require.NoError(t, err)
	require.NoError(t, engine.Play(out))

	done := make(chan bool, 1)
	require.NoError(t, engine.Crossfade(out, in, 150*time.Millisecond, func(completed bool) {
		done <- completed
	}))

	select {
	case completed := <-done:
		require.True(t, completed)
	case <-time.After(2 * time.Second):
		t.Fatal("crossfade never completed")
	}

	playing, _ := engine.IsPlaying(in)
	assert.True(t, playing)
	playing, _ = engine.IsPlaying(out)
	assert.False(t, playing)

	// Incoming lands at its configured volume, outgoing is detached.
	gain, silent, _, _ := sourceState(engine, in)
	assert.InDelta(t, math.Log2(0.8), gain, 1e-9)
	assert.False(t, silent)
	_, _, paused, open := sourceState(engine, out)
	assert.True(t, paused)
	assert.False(t, open)
}

func TestCrossfadeRescalesToMidFadeVolume(t *testing.T) {
	engine := newSpeakerEngine(t)
	outPath := writeTestWAV(t, "out.wav", 44100, 44100)
	inPath := writeTestWAV(t, "in.wav", 44100, 44100)

	out, err := engine.CreateSource(outPath, 60)
	require.NoError(t, err)
	in, err := engine.CreateSource(inPath, 80)
	require.NoError(t, err)
	require.NoError(t, engine.Play(out))

	done := make(chan bool, 1)
	require.NoError(t, engine.Crossfade(out, in, 300*time.Millisecond, func(completed bool) {
		done <- completed
	}))

	// A volume change mid-fade rescales the ramp target instead of being
	// overwritten when the fade lands.
	require.NoError(t, engine.SetVolume(in, 20))

	select {
	case completed := <-done:
		require.True(t, completed)
	case <-time.After(2 * time.Second):
		t.Fatal("crossfade never completed")
	}

	volume, _ := engine.Volume(in)
	assert.Equal(t, 20, volume)
	gain, silent, _, _ := sourceState(engine, in)
	assert.InDelta(t, math.Log2(0.2), gain, 1e-9)
	assert.False(t, silent)
}

func TestCrossfadeDegradesWhenOutgoingPaused(t *testing.T) {
	engine := newSpeakerEngine(t)
	outPath := writeTestWAV(t, "out.wav", 44100, 4410)
	inPath := writeTestWAV(t, "in.wav", 44100, 4410)

	out, err := engine.CreateSource(outPath, 60)
	require.NoError(t, err)
	in, err := engine.CreateSource(inPath, 80)
	require.NoError(t, err)

	var completions []bool
	require.NoError(t, engine.Crossfade(out, in, 150*time.Millisecond, func(completed bool) {
		completions = append(completions, completed)
	}))

	// No ramp: the incoming source starts immediately at full volume.
	require.Equal(t, []bool{true}, completions)
	playing, _ := engine.IsPlaying(in)
	assert.True(t, playing)
	gain, _, _, _ := sourceState(engine, in)
	assert.InDelta(t, math.Log2(0.8), gain, 1e-9)
}

func TestCrossfadeSupersededByRelease(t *testing.T) {
	engine := newSpeakerEngine(t)
	outPath := writeTestWAV(t, "out.wav", 44100, 44100)
	inPath := writeTestWAV(t, "in.wav", 44100, 44100)

	out, err := engine.CreateSource(outPath, 60)
	require.NoError(t, err)
	in, err := engine.CreateSource(inPath, 80)
	require.NoError(t, err)
	require.NoError(t, engine.Play(out))

	done := make(chan bool, 1)
	require.NoError(t, engine.Crossfade(out, in, 5*time.Second, func(completed bool) {
		done <- completed
	}))

	// Releasing a fade endpoint invalidates the fade token; the fade loop
	// reports early termination on its next tick.
	require.NoError(t, engine.Release(in))

	select {
	case completed := <-done:
		assert.False(t, completed)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded crossfade never reported back")
	}
}

func TestCrossfadeUnknownIncoming(t *testing.T) {
	engine := NewEngine(44100, time.Second)
	err := engine.Crossfade(domain.SourceHandle(1), domain.SourceHandle(2), time.Second, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSourceHandle)
}

func TestRebuildAfterContextClose(t *testing.T) {
	engine := newSpeakerEngine(t)
	path := writeTestWAV(t, "loop.wav", 44100, 44100)

	handle, err := engine.CreateSource(path, 40)
	require.NoError(t, err)
	require.NoError(t, engine.Play(handle))

	// Simulate the platform tearing the context down underneath us.
	engine.mu.Lock()
	engine.ctxState = domain.ContextClosed
	engine.mu.Unlock()
	speaker.Close()

	// The next start builds a fresh context and rebuilds the chain from
	// the retained buffer.
	require.NoError(t, engine.Play(handle))
	assert.Equal(t, domain.ContextRunning, engine.ContextState())

	playing, err := engine.IsPlaying(handle)
	require.NoError(t, err)
	assert.True(t, playing)

	engine.mu.Lock()
	src := engine.sources[handle]
	assert.Equal(t, engine.ctxGen, src.ctxGen)
	engine.mu.Unlock()

	gain, _, _, open := sourceState(engine, handle)
	assert.InDelta(t, math.Log2(0.4), gain, 1e-9)
	assert.True(t, open)
}

func TestPositionAdvancesDuringPlayback(t *testing.T) {
	engine := newSpeakerEngine(t)
	path := writeTestWAV(t, "loop.wav", 44100, 88200)

	handle, err := engine.CreateSource(path, 50)
	require.NoError(t, err)

	pos, err := engine.Position(handle)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), pos)

	require.NoError(t, engine.Play(handle))

	deadline := time.Now().Add(2 * time.Second)
	for {
		pos, err = engine.Position(handle)
		require.NoError(t, err)
		if pos > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("position never advanced while playing")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReleaseAndCleanup(t *testing.T) {
	engine := newSpeakerEngine(t)
	path := writeTestWAV(t, "loop.wav", 44100, 4410)

	handle, err := engine.CreateSource(path, 50)
	require.NoError(t, err)

	require.NoError(t, engine.Release(handle))
	assert.ErrorIs(t, engine.Play(handle), domain.ErrInvalidSourceHandle)
	require.NoError(t, engine.Release(handle), "double release is a no-op")

	require.NoError(t, engine.Cleanup())
	assert.Equal(t, domain.ContextClosed, engine.ContextState())
	require.NoError(t, engine.Cleanup(), "cleanup is idempotent")
}

func TestEnsureContextAfterCleanup(t *testing.T) {
	engine := newSpeakerEngine(t)
	require.NoError(t, engine.Cleanup())

	require.NoError(t, engine.EnsureContext())
	assert.Equal(t, domain.ContextRunning, engine.ContextState())
}
