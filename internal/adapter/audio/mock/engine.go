// Package mock provides a mock implementation of the AudioEngine interface.
// This is used for testing services without a real audio backend.
package mock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/ports"
)

// Engine is a mock implementation of the AudioEngine interface.
// It simulates the context lifecycle and source graph in memory without
// producing audio.
//
// Thread-safety: this implementation is thread-safe.
type Engine struct {
	logger *slog.Logger

	// Context lifecycle
	ctxState domain.ContextState
	ctxGen   int

	// Source state
	sources    map[domain.SourceHandle]*mockSource
	nextHandle domain.SourceHandle
	mu         sync.Mutex

	// Behavior configuration (for testing error scenarios)
	denyContext bool
	failLoad    bool
	failLoadURL string // when set, only this URL fails
	failPlay    bool
	manualFade  bool

	// In-flight manual crossfade
	pendingFade *pendingFade

	// loadGate, when set, blocks CreateSource until released
	loadGate *loadGate
}

// mockSource represents a live source in the mock engine.
type mockSource struct {
	handle   domain.SourceHandle
	url      string
	volume   int
	gain     float64
	playing  bool
	attached bool
	position time.Duration
	ctxGen   int
}

// pendingFade captures a crossfade awaiting manual completion.
type pendingFade struct {
	outgoing domain.SourceHandle
	incoming domain.SourceHandle
	onDone   func(bool)
}

// loadGate parks loads until released, so tests can observe a lane while
// its load is in flight.
type loadGate struct {
	entered chan struct{}
	release chan struct{}
}

// NewEngine creates a new mock audio engine.
func NewEngine() *Engine {
	return &Engine{
		ctxState:   domain.ContextUninitialized,
		sources:    make(map[domain.SourceHandle]*mockSource),
		nextHandle: 1,
	}
}

// SetLogger sets the logger for this engine.
func (m *Engine) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// SetDenyContext configures the mock to deny context creation/resumption,
// simulating the platform's autoplay restriction.
func (m *Engine) SetDenyContext(deny bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denyContext = deny
}

// SetFailLoad configures the mock to fail CreateSource for every URL.
func (m *Engine) SetFailLoad(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoad = fail
	m.failLoadURL = ""
}

// SetFailLoadURL configures the mock to fail CreateSource for one URL only,
// so fallback substitution paths can be exercised.
func (m *Engine) SetFailLoadURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoadURL = url
}

// SetFailPlay configures the mock to reject playback even after the
// resume-and-retry attempt.
func (m *Engine) SetFailPlay(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlay = fail
}

// SetManualCrossfade makes Crossfade wait for FinishCrossfade or
// AbandonCrossfade instead of completing synchronously, so callers can
// exercise mid-fade supersession.
func (m *Engine) SetManualCrossfade(manual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualFade = manual
}

// HoldLoads makes every CreateSource call block until release is invoked.
// Each arriving load signals on entered first.
func (m *Engine) HoldLoads() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := &loadGate{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	m.loadGate = g
	return g.entered, func() {
		m.mu.Lock()
		if m.loadGate == g {
			m.loadGate = nil
		}
		m.mu.Unlock()
		close(g.release)
	}
}

// SetSourcePosition sets the position a source reports (for testing).
func (m *Engine) SetSourcePosition(handle domain.SourceHandle, position time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return domain.ErrInvalidSourceHandle
	}
	src.position = position
	return nil
}

// SuspendContext moves a running context to suspended (for testing).
func (m *Engine) SuspendContext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctxState == domain.ContextRunning {
		m.ctxState = domain.ContextSuspended
	}
}

// CloseContext force-closes the context (for testing self-healing paths).
func (m *Engine) CloseContext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxState = domain.ContextClosed
}

// EnsureContext creates or resumes the shared context.
func (m *Engine) EnsureContext() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ensureContextLocked()
}

func (m *Engine) ensureContextLocked() error {
	if m.denyContext {
		return domain.ErrContextUnavailable
	}

	switch m.ctxState {
	case domain.ContextRunning:
		return nil
	case domain.ContextSuspended:
		m.ctxState = domain.ContextRunning
		return nil
	default:
		// Uninitialized or closed: build a fresh context generation.
		m.ctxState = domain.ContextRunning
		m.ctxGen++
		return nil
	}
}

// ContextState reports the current context lifecycle state.
func (m *Engine) ContextState() domain.ContextState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctxState
}

// CreateSource builds a paused looping source at the given volume.
func (m *Engine) CreateSource(url string, volume int) (domain.SourceHandle, error) {
	m.mu.Lock()
	gate := m.loadGate
	m.mu.Unlock()
	if gate != nil {
		gate.entered <- struct{}{}
		<-gate.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctxState != domain.ContextRunning {
		return domain.InvalidSourceHandle, domain.ErrContextUnavailable
	}
	if url == "" {
		return domain.InvalidSourceHandle, domain.NewSourceLoadError(url, "empty url", nil)
	}
	if m.failLoad || (m.failLoadURL != "" && m.failLoadURL == url) {
		return domain.InvalidSourceHandle, domain.NewSourceLoadError(url, "mock load failed", nil)
	}

	handle := m.nextHandle
	m.nextHandle++

	volume = domain.ClampVolume(volume)
	m.sources[handle] = &mockSource{
		handle:   handle,
		url:      url,
		volume:   volume,
		gain:     domain.VolumeGain(volume),
		playing:  false,
		attached: true,
		ctxGen:   m.ctxGen,
	}

	return handle, nil
}

// Play starts or resumes a source. Idempotent.
func (m *Engine) Play(handle domain.SourceHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return domain.ErrInvalidSourceHandle
	}

	if src.playing {
		return nil
	}

	if err := m.startLocked(src); err == nil {
		return nil
	}

	// One resume-and-retry, then give up.
	if err := m.ensureContextLocked(); err != nil {
		return domain.ErrPlaybackRejected
	}
	if err := m.startLocked(src); err != nil {
		return domain.ErrPlaybackRejected
	}
	return nil
}

func (m *Engine) startLocked(src *mockSource) error {
	if m.failPlay {
		return domain.ErrPlaybackRejected
	}
	if m.ctxState != domain.ContextRunning {
		return domain.ErrContextUnavailable
	}
	m.healLocked(src)
	src.playing = true
	src.attached = true
	return nil
}

// Pause pauses a source. Idempotent.
func (m *Engine) Pause(handle domain.SourceHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return domain.ErrInvalidSourceHandle
	}

	src.playing = false
	return nil
}

// SetVolume applies volume to the source and its gain node, rebuilding the
// source against the current context generation when stale.
func (m *Engine) SetVolume(handle domain.SourceHandle, volume int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return domain.ErrInvalidSourceHandle
	}
	if volume < domain.MinVolume || volume > domain.MaxVolume {
		return domain.ErrInvalidVolume
	}

	m.healLocked(src)
	src.volume = volume
	src.gain = domain.VolumeGain(volume)
	return nil
}

// healLocked rebuilds a source bound to a stale context generation.
func (m *Engine) healLocked(src *mockSource) {
	if src.ctxGen != m.ctxGen {
		src.ctxGen = m.ctxGen
		src.attached = true
		src.position = 0
	}
}

// Volume returns the source's configured volume.
func (m *Engine) Volume(handle domain.SourceHandle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return 0, domain.ErrInvalidSourceHandle
	}
	return src.volume, nil
}

// IsPlaying reports whether the source is unpaused.
func (m *Engine) IsPlaying(handle domain.SourceHandle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return false, domain.ErrInvalidSourceHandle
	}
	return src.playing, nil
}

// Position reports the source's playback position.
func (m *Engine) Position(handle domain.SourceHandle) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return 0, domain.ErrInvalidSourceHandle
	}
	return src.position, nil
}

// Crossfade fades outgoing into incoming. In the default mode the fade
// completes synchronously; in manual mode it waits for FinishCrossfade or
// AbandonCrossfade.
func (m *Engine) Crossfade(outgoing, incoming domain.SourceHandle, duration time.Duration, onDone func(completed bool)) error {
	m.mu.Lock()

	out, okOut := m.sources[outgoing]
	in, okIn := m.sources[incoming]
	if !okIn {
		m.mu.Unlock()
		return domain.ErrInvalidSourceHandle
	}
	if onDone == nil {
		onDone = func(bool) {}
	}

	// Outgoing gone or already paused: degrade to plain play.
	if !okOut || !out.playing {
		err := m.startLocked(in)
		m.mu.Unlock()
		if err != nil {
			return err
		}
		onDone(true)
		return nil
	}

	if err := m.startLocked(in); err != nil {
		m.mu.Unlock()
		return err
	}

	if m.manualFade {
		displaced := m.pendingFade
		m.pendingFade = &pendingFade{outgoing: outgoing, incoming: incoming, onDone: onDone}
		m.mu.Unlock()
		// A newer fade owns the sources now; the displaced one reports
		// early termination, mirroring the real engine's fade tokens.
		if displaced != nil {
			displaced.onDone(false)
		}
		return nil
	}

	m.completeFadeLocked(out, in)
	m.mu.Unlock()
	onDone(true)
	return nil
}

func (m *Engine) completeFadeLocked(out, in *mockSource) {
	in.gain = domain.VolumeGain(in.volume)
	out.playing = false
	out.attached = false
}

// FinishCrossfade completes the pending manual crossfade.
func (m *Engine) FinishCrossfade() {
	m.mu.Lock()
	fade := m.pendingFade
	m.pendingFade = nil
	if fade == nil {
		m.mu.Unlock()
		return
	}
	out, okOut := m.sources[fade.outgoing]
	in, okIn := m.sources[fade.incoming]
	if okOut && okIn {
		m.completeFadeLocked(out, in)
	}
	m.mu.Unlock()
	fade.onDone(true)
}

// AbandonCrossfade cancels the pending manual crossfade without applying
// its endpoints, as a superseding operation would.
func (m *Engine) AbandonCrossfade() {
	m.mu.Lock()
	fade := m.pendingFade
	m.pendingFade = nil
	m.mu.Unlock()
	if fade != nil {
		fade.onDone(false)
	}
}

// Release pauses, detaches, and frees a source. No-op for unknown handles.
func (m *Engine) Release(handle domain.SourceHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sources, handle)
	return nil
}

// Cleanup closes the context and releases every source. Idempotent.
func (m *Engine) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctxState == domain.ContextRunning || m.ctxState == domain.ContextSuspended {
		m.ctxState = domain.ContextClosed
	}
	m.sources = make(map[domain.SourceHandle]*mockSource)
	m.pendingFade = nil
	return nil
}

// Test inspection helpers

// LiveSources returns the number of sources the engine currently holds.
func (m *Engine) LiveSources() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// AudibleSources returns how many sources are attached and unpaused.
func (m *Engine) AudibleSources() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, src := range m.sources {
		if src.attached && src.playing {
			n++
		}
	}
	return n
}

// SourceGain returns the source's current gain-node value.
func (m *Engine) SourceGain(handle domain.SourceHandle) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return 0, domain.ErrInvalidSourceHandle
	}
	return src.gain, nil
}

// SourceURL returns the URL a source was created from.
func (m *Engine) SourceURL(handle domain.SourceHandle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[handle]
	if !ok {
		return "", domain.ErrInvalidSourceHandle
	}
	return src.url, nil
}

// Verify that Engine implements the AudioEngine interface
var _ ports.AudioEngine = (*Engine)(nil)
