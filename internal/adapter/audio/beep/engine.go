// Package beep implements the AudioEngine interface on top of the beep
// library and its speaker backend.
//
// The shared audio context is the speaker, initialized once at a fixed
// sample rate; every source is resampled to it so both lanes mix on the
// one shared destination. Each source keeps its fully decoded buffer so it
// can be rebuilt against a fresh context when the previous one was closed.
package beep

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/ports"
)

// fadeTick is the crossfade sampling interval, the animation-tick analog.
const fadeTick = 50 * time.Millisecond

// Engine is the beep-backed audio engine.
//
// Thread-safety: all operations are safe for concurrent use. Mutations of
// live streamers happen under the speaker lock.
type Engine struct {
	logger       *slog.Logger
	sampleRate   beep.SampleRate
	fetchTimeout time.Duration
	client       *http.Client

	mu         sync.Mutex
	ctxState   domain.ContextState
	ctxGen     int
	sources    map[domain.SourceHandle]*source
	nextHandle domain.SourceHandle
}

// source is one live pairing of a looping media source and its gain node.
type source struct {
	handle domain.SourceHandle
	url    string

	// buffer retains the decoded audio so the playback chain can be
	// rebuilt against a new context generation
	buffer *beep.Buffer

	ctrl   *beep.Ctrl
	vol    *effects.Volume
	gate   *gate
	seeker beep.StreamSeeker

	// volume is the configured lane volume, 0-100; the momentary gain may
	// differ during a crossfade
	volume int

	// ctxGen is the context generation the chain was built against
	ctxGen int

	// fadeGen is bumped by any operation that supersedes an in-flight
	// fade involving this source
	fadeGen uint64

	fading bool
}

// NewEngine creates a beep engine. The context is not created here: it is
// created lazily by EnsureContext, inside a user-initiated call chain.
func NewEngine(sampleRate int, fetchTimeout time.Duration) *Engine {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	return &Engine{
		sampleRate:   beep.SampleRate(sampleRate),
		fetchTimeout: fetchTimeout,
		client:       &http.Client{Timeout: fetchTimeout},
		ctxState:     domain.ContextUninitialized,
		sources:      make(map[domain.SourceHandle]*source),
		nextHandle:   1,
	}
}

// SetLogger sets the logger for this engine.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// EnsureContext creates or resumes the shared context.
func (e *Engine) EnsureContext() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureContextLocked()
}

func (e *Engine) ensureContextLocked() error {
	switch e.ctxState {
	case domain.ContextRunning:
		return nil
	case domain.ContextSuspended:
		e.ctxState = domain.ContextRunning
		return nil
	}

	// Uninitialized or closed: initialize the speaker with a ~100ms buffer.
	if err := speaker.Init(e.sampleRate, e.sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}

	e.ctxGen++
	e.ctxState = domain.ContextRunning

	if e.logger != nil {
		e.logger.Debug("audio context created",
			slog.Int("generation", e.ctxGen),
			slog.Int("sample_rate", int(e.sampleRate)))
	}
	return nil
}

// ContextState reports the current context lifecycle state.
func (e *Engine) ContextState() domain.ContextState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctxState
}

// CreateSource fetches and decodes url, builds the looping chain with its
// gain node at volume/100, and connects it paused to the speaker.
func (e *Engine) CreateSource(rawURL string, volume int) (domain.SourceHandle, error) {
	buffer, err := e.fetchAndDecode(rawURL)
	if err != nil {
		return domain.InvalidSourceHandle, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureContextLocked(); err != nil {
		return domain.InvalidSourceHandle, err
	}

	handle := e.nextHandle
	e.nextHandle++

	src := &source{
		handle: handle,
		url:    rawURL,
		buffer: buffer,
		volume: domain.ClampVolume(volume),
		ctxGen: e.ctxGen,
	}
	e.buildChainLocked(src)
	e.sources[handle] = src

	if e.logger != nil {
		e.logger.Debug("source created",
			slog.Int64("handle", int64(handle)),
			slog.String("url", rawURL))
	}
	return handle, nil
}

// buildChainLocked wires buffer -> loop -> resample -> gain -> pause gate
// -> detach gate and connects the chain to the speaker, paused.
func (e *Engine) buildChainLocked(src *source) {
	seeker := src.buffer.Streamer(0, src.buffer.Len())
	streamer := beep.Loop(-1, seeker)
	format := src.buffer.Format()

	var resampled beep.Streamer = streamer
	if format.SampleRate != e.sampleRate {
		resampled = beep.Resample(4, format.SampleRate, e.sampleRate, streamer)
	}

	vol := &effects.Volume{
		Streamer: resampled,
		Base:     2,
	}
	setGain(vol, domain.VolumeGain(src.volume))

	ctrl := &beep.Ctrl{Streamer: vol, Paused: true}
	g := &gate{streamer: ctrl, open: true}

	src.vol = vol
	src.ctrl = ctrl
	src.gate = g
	src.seeker = seeker
	src.ctxGen = e.ctxGen

	speaker.Play(g)
}

// healLocked rebuilds a source whose chain is bound to a closed context
// generation. The shared guard for every operation that touches nodes.
func (e *Engine) healLocked(src *source) {
	if src.ctxGen == e.ctxGen {
		return
	}

	wasPlaying := !src.ctrl.Paused
	e.buildChainLocked(src)
	if wasPlaying {
		speaker.Lock()
		src.ctrl.Paused = false
		speaker.Unlock()
	}

	if e.logger != nil {
		e.logger.Debug("source rebuilt against current context",
			slog.Int64("handle", int64(src.handle)),
			slog.Int("generation", e.ctxGen))
	}
}

// Play starts or resumes a source. Idempotent; on rejection the context is
// resumed and the start retried exactly once.
func (e *Engine) Play(handle domain.SourceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[handle]
	if !ok {
		return domain.ErrInvalidSourceHandle
	}

	if e.startLocked(src) == nil {
		return nil
	}

	if err := e.ensureContextLocked(); err != nil {
		return domain.ErrPlaybackRejected
	}
	if err := e.startLocked(src); err != nil {
		return domain.ErrPlaybackRejected
	}
	return nil
}

func (e *Engine) startLocked(src *source) error {
	if e.ctxState != domain.ContextRunning {
		return domain.ErrContextUnavailable
	}

	e.healLocked(src)

	speaker.Lock()
	src.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Pause pauses a source. Idempotent.
func (e *Engine) Pause(handle domain.SourceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[handle]
	if !ok {
		return domain.ErrInvalidSourceHandle
	}

	speaker.Lock()
	src.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// SetVolume applies volume to the source's gain node. A fade in flight is
// not cancelled: the fade loop re-reads the configured volume each tick
// and rescales its target instead.
func (e *Engine) SetVolume(handle domain.SourceHandle, volume int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[handle]
	if !ok {
		return domain.ErrInvalidSourceHandle
	}
	if volume < domain.MinVolume || volume > domain.MaxVolume {
		return domain.ErrInvalidVolume
	}

	e.healLocked(src)
	src.volume = volume

	if !src.fading {
		speaker.Lock()
		setGain(src.vol, domain.VolumeGain(volume))
		speaker.Unlock()
	}
	return nil
}

// Volume returns the configured volume of a source.
func (e *Engine) Volume(handle domain.SourceHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[handle]
	if !ok {
		return 0, domain.ErrInvalidSourceHandle
	}
	return src.volume, nil
}

// IsPlaying reports whether a source is unpaused.
func (e *Engine) IsPlaying(handle domain.SourceHandle) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[handle]
	if !ok {
		return false, domain.ErrInvalidSourceHandle
	}

	speaker.Lock()
	playing := !src.ctrl.Paused
	speaker.Unlock()
	return playing, nil
}

// Position reports the position within the current loop iteration, read
// from the stream seeker inside the loop wrapper.
func (e *Engine) Position(handle domain.SourceHandle) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[handle]
	if !ok {
		return 0, domain.ErrInvalidSourceHandle
	}

	speaker.Lock()
	n := src.seeker.Position()
	speaker.Unlock()
	return src.buffer.Format().SampleRate.D(n), nil
}

// Crossfade ramps incoming up from silence and outgoing down over
// duration, sampling the ramp every tick so concurrent volume changes
// rescale the targets. Degrades to Play(incoming) when outgoing is already
// paused.
func (e *Engine) Crossfade(outgoing, incoming domain.SourceHandle, duration time.Duration, onDone func(completed bool)) error {
	if onDone == nil {
		onDone = func(bool) {}
	}

	e.mu.Lock()

	in, okIn := e.sources[incoming]
	if !okIn {
		e.mu.Unlock()
		return domain.ErrInvalidSourceHandle
	}

	out, okOut := e.sources[outgoing]
	outPaused := true
	if okOut {
		speaker.Lock()
		outPaused = out.ctrl.Paused
		speaker.Unlock()
	}

	if !okOut || outPaused {
		err := e.startLocked(in)
		e.mu.Unlock()
		if err != nil {
			return err
		}
		onDone(true)
		return nil
	}

	// Start incoming silent, then ramp.
	e.healLocked(in)
	speaker.Lock()
	setGain(in.vol, 0)
	speaker.Unlock()
	if err := e.startLocked(in); err != nil {
		e.mu.Unlock()
		return domain.NewEngineError("crossfade", in.url, "start incoming source", err)
	}

	out.fadeGen++
	in.fadeGen++
	out.fading = true
	in.fading = true
	outToken, inToken := out.fadeGen, in.fadeGen

	e.mu.Unlock()

	go e.runFade(outgoing, incoming, outToken, inToken, duration, onDone)
	return nil
}

// runFade drives one crossfade to completion or early exit.
func (e *Engine) runFade(outgoing, incoming domain.SourceHandle, outToken, inToken uint64, duration time.Duration, onDone func(bool)) {
	start := time.Now()
	ticker := time.NewTicker(fadeTick)
	defer ticker.Stop()

	for range ticker.C {
		e.mu.Lock()

		out, okOut := e.sources[outgoing]
		in, okIn := e.sources[incoming]

		// A newer operation owns one of the sources: discard this fade.
		if !okOut || !okIn || out.fadeGen != outToken || in.fadeGen != inToken {
			if okOut && out.fadeGen == outToken {
				out.fading = false
			}
			if okIn && in.fadeGen == inToken {
				in.fading = false
			}
			e.mu.Unlock()
			onDone(false)
			return
		}

		progress := float64(time.Since(start)) / float64(duration)
		if progress >= 1 {
			speaker.Lock()
			setGain(in.vol, domain.VolumeGain(in.volume))
			out.ctrl.Paused = true
			out.gate.close()
			speaker.Unlock()
			out.fading = false
			in.fading = false
			e.mu.Unlock()
			onDone(true)
			return
		}

		// Endpoints re-read each tick: a manual volume change mid-fade
		// rescales the ramp target.
		speaker.Lock()
		setGain(in.vol, progress*domain.VolumeGain(in.volume))
		setGain(out.vol, (1-progress)*domain.VolumeGain(out.volume))
		speaker.Unlock()

		e.mu.Unlock()
	}
}

// Release pauses, detaches, and frees a source. Unknown handles are a no-op.
func (e *Engine) Release(handle domain.SourceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[handle]
	if !ok {
		return nil
	}

	src.fadeGen++ // cancels any fade involving this source
	speaker.Lock()
	src.ctrl.Paused = true
	src.gate.close()
	speaker.Unlock()

	delete(e.sources, handle)
	return nil
}

// Cleanup closes the context and releases every source. Idempotent.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for handle, src := range e.sources {
		src.fadeGen++
		delete(e.sources, handle)
	}

	if e.ctxState == domain.ContextRunning || e.ctxState == domain.ContextSuspended {
		speaker.Clear()
		speaker.Close()
		e.ctxState = domain.ContextClosed
	}
	return nil
}

// fetchAndDecode loads the audio bytes behind a local path or http(s) URL
// and decodes them into a buffer.
func (e *Engine) fetchAndDecode(rawURL string) (*beep.Buffer, error) {
	data, err := e.fetch(rawURL)
	if err != nil {
		return nil, err
	}

	reader := readCloser{bytes.NewReader(data)}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch sourceExt(rawURL) {
	case ".wav":
		streamer, format, err = wav.Decode(reader)
	default:
		streamer, format, err = mp3.Decode(reader)
	}
	if err != nil {
		return nil, domain.NewSourceLoadError(rawURL, "decode failed", err)
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	return buffer, nil
}

func (e *Engine) fetch(rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		resp, err := e.client.Get(rawURL)
		if err != nil {
			return nil, domain.NewSourceLoadError(rawURL, "fetch failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, domain.NewSourceLoadError(rawURL, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, domain.NewSourceLoadError(rawURL, "read failed", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(strings.TrimPrefix(rawURL, "file://"))
	if err != nil {
		return nil, domain.NewSourceLoadError(rawURL, "open failed", err)
	}
	return data, nil
}

// sourceExt extracts the audio extension, ignoring query parameters.
func sourceExt(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return strings.ToLower(path.Ext(u.Path))
	}
	return strings.ToLower(path.Ext(rawURL))
}

// setGain maps a linear gain onto the exponential volume effect.
// Callers hold the speaker lock when the chain is live.
func setGain(vol *effects.Volume, gain float64) {
	if gain <= 0 {
		vol.Silent = true
		vol.Volume = 0
		return
	}
	vol.Silent = false
	vol.Volume = math.Log2(gain)
}

// gate detaches a chain from the speaker mixer: once closed it reports
// itself drained and the mixer drops it.
type gate struct {
	streamer beep.Streamer
	open     bool
}

func (g *gate) Stream(samples [][2]float64) (int, bool) {
	if !g.open {
		return 0, false
	}
	return g.streamer.Stream(samples)
}

func (g *gate) Err() error { return nil }

// close is called under the speaker lock.
func (g *gate) close() { g.open = false }

// readCloser adapts a bytes.Reader to the decoder's ReadCloser input.
type readCloser struct {
	*bytes.Reader
}

func (readCloser) Close() error { return nil }

// Verify that Engine implements the AudioEngine interface
var _ ports.AudioEngine = (*Engine)(nil)
