package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/media"
	"github.com/quietroom/quietroom/internal/ports"
	"github.com/quietroom/quietroom/internal/resolver"
)

// laneStatus is the lifecycle state of one playback lane.
type laneStatus int

const (
	laneIdle laneStatus = iota
	laneLoading
	lanePlaying
	lanePaused
)

// lane is the controller-side state of one category.
type lane struct {
	category domain.Category
	status   laneStatus
	index    int
	track    domain.Track
	volume   int

	// handle is the lane's current source; InvalidSourceHandle when idle
	handle domain.SourceHandle

	// cacheKey is the stable identity of the current source URL, used
	// for playback-state persistence
	cacheKey string

	// fadingOut is the previous source while a crossfade is in flight;
	// released in the fade callback, or hard-cut by a superseding
	// operation
	fadingOut domain.SourceHandle

	// gen is bumped by every superseding operation; async completions
	// compare their captured value and discard stale work
	gen uint64
}

// PlayerConfig carries the tunables of the playback controller.
type PlayerConfig struct {
	// DefaultVolume is the initial lane volume when no cached record exists
	DefaultVolume int

	// Crossfade is the skip transition duration
	Crossfade time.Duration

	// FetchTimeout bounds one download attempt when filling the cache
	FetchTimeout time.Duration
}

// PlayerService orchestrates the two playback lanes. It owns the lane
// state machines, drives the engine, and is the only component that
// touches the engine, honoring the rule that context creation happens
// inside user-initiated call chains.
//
// All operations are thread-safe. Slow work (download, decode) runs with
// the state lock released and commits only if the lane generation is
// unchanged.
type PlayerService struct {
	logger   *slog.Logger
	engine   ports.AudioEngine
	listing  ports.TrackListing
	fallback ports.TrackListing
	cache    ports.PlaybackCache
	resolver *resolver.Resolver
	catalog  *Catalog
	bus      ports.EventBus
	client   *http.Client

	cfg PlayerConfig

	mu          sync.Mutex
	lanes       map[domain.Category]*lane
	initialized bool
	degraded    bool
	lastErr     string
}

// NewPlayerService creates the playback controller. fallback is the
// degraded-mode listing used when listing fails or a category is empty.
func NewPlayerService(
	logger *slog.Logger,
	engine ports.AudioEngine,
	listing ports.TrackListing,
	fallback ports.TrackListing,
	cache ports.PlaybackCache,
	res *resolver.Resolver,
	catalog *Catalog,
	bus ports.EventBus,
	cfg PlayerConfig,
) *PlayerService {
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = 50
	}
	if cfg.Crossfade <= 0 {
		cfg.Crossfade = 2 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}

	lanes := make(map[domain.Category]*lane)
	for _, category := range domain.Categories() {
		lanes[category] = &lane{
			category: category,
			handle:   domain.InvalidSourceHandle,
			volume:   cfg.DefaultVolume,
		}
	}

	return &PlayerService{
		logger:   logger,
		engine:   engine,
		listing:  listing,
		fallback: fallback,
		cache:    cache,
		resolver: res,
		catalog:  catalog,
		bus:      bus,
		client:   &http.Client{Timeout: cfg.FetchTimeout},
		cfg:      cfg,
		lanes:    lanes,
	}
}

// Initialize loads the catalogs and restores cached lane volumes. It does
// not touch the engine: the audio context is created lazily by the first
// user action. A listing failure degrades to the fallback listing, so
// Initialize never fails hard.
func (s *PlayerService) Initialize(ctx context.Context) error {
	s.mu.Lock()

	degraded := false
	for _, category := range domain.Categories() {
		tracks, err := s.listing.ListTracks(ctx, category)
		if err != nil || len(tracks) == 0 {
			if err != nil {
				s.logger.Warn("track listing unavailable, using placeholders",
					slog.String("category", string(category)),
					slog.Any("error", err))
			}
			degraded = true
			tracks, err = s.fallback.ListTracks(ctx, category)
			if err != nil {
				// The fallback listing is in-process and never empty.
				s.logger.Error("placeholder listing failed",
					slog.String("category", string(category)),
					slog.Any("error", err))
				continue
			}
		}
		s.catalog.Replace(category, tracks)
	}

	for _, category := range domain.Categories() {
		ln := s.lanes[category]
		ln.index = 0
		if track, err := s.catalog.At(category, 0); err == nil {
			ln.track = track
			s.restoreVolumeLocked(ln, track)
		}
	}

	s.initialized = true
	s.degraded = degraded
	s.lastErr = ""
	s.mu.Unlock()

	s.logger.Info("player initialized", slog.Bool("degraded", degraded))
	s.bus.Publish(domain.NewPlayerInitializedEvent(degraded))
	return nil
}

// restoreVolumeLocked applies the cached volume for a lane's track, if a
// record exists.
func (s *PlayerService) restoreVolumeLocked(ln *lane, track domain.Track) {
	resolved, err := s.resolver.Resolve(track)
	if err != nil {
		return
	}
	if record, ok := s.cache.PlaybackState(resolver.CacheKey(resolved)); ok {
		ln.volume = domain.ClampVolume(record.Volume)
	}
}

// RetryInitialization re-attempts the real listing after a degraded
// Initialize or a recorded error. Lanes playing placeholder audio are
// hard-replaced with the freshly listed tracks.
func (s *PlayerService) RetryInitialization(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return s.Initialize(ctx)
	}
	s.lastErr = ""
	if !s.degraded {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	listed := make(map[domain.Category][]domain.Track)
	for _, category := range domain.Categories() {
		tracks, err := s.listing.ListTracks(ctx, category)
		if err != nil {
			s.mu.Lock()
			s.recordErrorLocked(category, "track listing still unavailable", err)
			s.mu.Unlock()
			return err
		}
		if len(tracks) == 0 {
			s.mu.Lock()
			s.recordErrorLocked(category, "no tracks available", domain.ErrEmptyCategory)
			s.mu.Unlock()
			return domain.ErrEmptyCategory
		}
		listed[category] = tracks
	}

	s.mu.Lock()
	for category, tracks := range listed {
		s.catalog.Replace(category, tracks)
	}
	s.degraded = false
	s.mu.Unlock()

	for _, category := range domain.Categories() {
		s.hardReplace(category, 0)
	}

	s.logger.Info("listing recovered from degraded mode")
	s.bus.Publish(domain.NewPlayerInitializedEvent(false))
	return nil
}

// Toggle starts, pauses, or resumes a lane. The first toggle on an idle
// lane loads the current track; failures leave the lane idle with one
// recorded error.
func (s *PlayerService) Toggle(category domain.Category) error {
	s.mu.Lock()

	ln, err := s.laneLocked(category)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := s.engine.EnsureContext(); err != nil {
		s.recordErrorLocked(category, "audio is blocked until you interact again", err)
		s.mu.Unlock()
		return err
	}

	switch ln.status {
	case lanePlaying:
		err := s.engine.Pause(ln.handle)
		if err == nil {
			ln.status = lanePaused
			s.syncLaneLocked(ln)
			s.mu.Unlock()
			s.bus.Publish(domain.NewLanePausedEvent(category))
			return nil
		}
		s.recordErrorLocked(category, "pause failed", err)
		s.mu.Unlock()
		return err

	case lanePaused:
		err := s.engine.Play(ln.handle)
		if err == nil {
			ln.status = lanePlaying
			s.lastErr = ""
			s.syncLaneLocked(ln)
			track := ln.track
			s.mu.Unlock()
			s.bus.Publish(domain.NewLaneStartedEvent(category, track))
			return nil
		}
		s.recordErrorLocked(category, "playback was rejected", err)
		s.mu.Unlock()
		return err

	case laneLoading:
		// Toggling mid-load supersedes the load: bump the generation so
		// the in-flight commit discards its source, and settle the lane
		// idle rather than let a stale start land after the user asked
		// to stop.
		ln.gen++
		ln.status = laneIdle
		s.mu.Unlock()
		return nil

	default: // laneIdle
		return s.startFromIdleLocked(ln)
	}
}

// startFromIdleLocked loads the lane's current track and starts playback.
// Called with s.mu held; releases it during the slow build and returns
// with it released.
func (s *PlayerService) startFromIdleLocked(ln *lane) error {
	category := ln.category

	track, err := s.catalog.At(category, ln.index)
	if err != nil {
		s.recordErrorLocked(category, "no tracks available", err)
		s.mu.Unlock()
		return err
	}

	ln.gen++
	gen := ln.gen
	ln.status = laneLoading
	ln.track = track
	volume := ln.volume
	s.mu.Unlock()

	handle, cacheKey, err := s.buildSource(track, volume)

	s.mu.Lock()
	if ln.gen != gen {
		// Superseded while loading: discard the built source.
		s.mu.Unlock()
		if handle != domain.InvalidSourceHandle {
			_ = s.engine.Release(handle)
		}
		return nil
	}

	if err != nil {
		ln.status = laneIdle
		s.recordErrorLocked(category, "could not load "+track.Title, err)
		s.mu.Unlock()
		return err
	}

	if err := s.engine.Play(handle); err != nil {
		ln.status = laneIdle
		s.recordErrorLocked(category, "playback was rejected", err)
		s.mu.Unlock()
		_ = s.engine.Release(handle)
		return err
	}

	ln.handle = handle
	ln.cacheKey = cacheKey
	ln.track = track // picks up metadata backfilled during the build
	ln.status = lanePlaying
	s.lastErr = ""
	s.syncLaneLocked(ln)

	s.mu.Unlock()

	s.logger.Info("lane started",
		slog.String("category", string(category)),
		slog.String("track", track.Title))
	s.bus.Publish(domain.NewLaneStartedEvent(category, track))
	return nil
}

// SetVolume applies a lane volume. A crossfade in flight is not cancelled;
// the fade rescales its ramp to the new endpoint.
func (s *PlayerService) SetVolume(category domain.Category, volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := s.laneLocked(category)
	if err != nil {
		return err
	}
	if volume < domain.MinVolume || volume > domain.MaxVolume {
		return domain.ErrInvalidVolume
	}

	ln.volume = volume

	if ln.handle != domain.InvalidSourceHandle {
		if err := s.engine.EnsureContext(); err != nil {
			s.recordErrorLocked(category, "audio is blocked until you interact again", err)
			return err
		}
		if err := s.engine.SetVolume(ln.handle, volume); err != nil {
			s.recordErrorLocked(category, "volume change failed", err)
			return err
		}
	}

	s.syncLaneLocked(ln)
	s.bus.Publish(domain.NewLaneVolumeEvent(category, volume))
	return nil
}

// Skip advances a lane to the next track. A playing lane crossfades into
// the new track; an idle or paused lane only advances the index and loads
// lazily on the next toggle.
func (s *PlayerService) Skip(category domain.Category) error {
	s.mu.Lock()

	ln, err := s.laneLocked(category)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	track, nextIndex, err := s.catalog.Next(category, ln.index)
	if err != nil {
		s.recordErrorLocked(category, "no tracks available", err)
		s.mu.Unlock()
		return err
	}

	ln.gen++
	gen := ln.gen
	s.hardCutFadeLocked(ln)

	if ln.status != lanePlaying && ln.status != laneLoading {
		// Lazy path: drop any stale handle, advance, done.
		if ln.handle != domain.InvalidSourceHandle {
			old := ln.handle
			ln.handle = domain.InvalidSourceHandle
			ln.cacheKey = ""
			defer func() { _ = s.engine.Release(old) }()
		}
		ln.status = laneIdle
		ln.index = nextIndex
		ln.track = track
		s.bus.Publish(domain.NewTrackChangedEvent(category, track, nextIndex))
		s.mu.Unlock()
		return nil
	}

	if err := s.engine.EnsureContext(); err != nil {
		s.recordErrorLocked(category, "audio is blocked until you interact again", err)
		s.mu.Unlock()
		return err
	}

	volume := ln.volume
	s.mu.Unlock()

	handle, cacheKey, err := s.buildSource(track, volume)

	s.mu.Lock()
	if ln.gen != gen {
		s.mu.Unlock()
		if handle != domain.InvalidSourceHandle {
			_ = s.engine.Release(handle)
		}
		return nil
	}

	if err != nil {
		// The old track keeps playing; only the skip failed.
		s.recordErrorLocked(category, "could not load "+track.Title, err)
		s.mu.Unlock()
		return err
	}

	outgoing := ln.handle
	ln.fadingOut = outgoing
	ln.handle = handle
	ln.cacheKey = cacheKey
	ln.index = nextIndex
	ln.track = track
	ln.status = lanePlaying
	s.lastErr = ""
	s.syncLaneLocked(ln)
	// The fade callback takes the lane lock, so the fade starts outside it.
	s.mu.Unlock()

	err = s.engine.Crossfade(outgoing, handle, s.cfg.Crossfade, func(completed bool) {
		s.finishFade(category, gen, outgoing, completed)
	})
	if err != nil {
		// Fallback to a hard cut so the skip still lands.
		s.mu.Lock()
		if ln.gen == gen {
			ln.fadingOut = domain.InvalidSourceHandle
		}
		s.mu.Unlock()
		_ = s.engine.Release(outgoing)

		if playErr := s.engine.Play(handle); playErr != nil {
			s.mu.Lock()
			if ln.gen == gen {
				ln.status = laneIdle
				ln.handle = domain.InvalidSourceHandle
				s.recordErrorLocked(category, "playback was rejected", playErr)
			}
			s.mu.Unlock()
			_ = s.engine.Release(handle)
			return playErr
		}
	}

	s.logger.Info("lane skipped",
		slog.String("category", string(category)),
		slog.String("track", track.Title),
		slog.Int("index", nextIndex))
	s.bus.Publish(domain.NewTrackChangedEvent(category, track, nextIndex))
	return nil
}

// finishFade is the crossfade completion callback. The outgoing handle is
// released only here, and only when the lane generation still matches; a
// superseding operation has already hard-cut it otherwise.
func (s *PlayerService) finishFade(category domain.Category, gen uint64, outgoing domain.SourceHandle, completed bool) {
	s.mu.Lock()
	ln := s.lanes[category]
	if ln == nil || ln.gen != gen {
		s.mu.Unlock()
		return
	}
	ln.fadingOut = domain.InvalidSourceHandle
	s.mu.Unlock()

	_ = s.engine.Release(outgoing)
	s.bus.Publish(domain.NewCrossfadeDoneEvent(category, completed))
}

// hardCutFadeLocked releases a fade-out source left by a superseded
// crossfade. The stale fade callback sees the bumped generation and
// leaves the handle alone.
func (s *PlayerService) hardCutFadeLocked(ln *lane) {
	if ln.fadingOut == domain.InvalidSourceHandle {
		return
	}
	old := ln.fadingOut
	ln.fadingOut = domain.InvalidSourceHandle
	go func() { _ = s.engine.Release(old) }()
}

// ShuffleAll reshuffles both catalogs and resets both lanes to index
// zero. Playing lanes get a hard replace, no crossfade.
func (s *PlayerService) ShuffleAll() error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return domain.ErrNotInitialized
	}
	for _, category := range domain.Categories() {
		s.catalog.Shuffle(category)
	}
	s.mu.Unlock()

	var firstErr error
	for _, category := range domain.Categories() {
		if err := s.hardReplace(category, 0); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.logger.Info("catalogs shuffled")
	s.bus.Publish(domain.NewCatalogShuffledEvent())
	return firstErr
}

// hardReplace points a lane at index and, if it was playing, swaps the
// audible source without a crossfade.
func (s *PlayerService) hardReplace(category domain.Category, index int) error {
	s.mu.Lock()

	ln := s.lanes[category]
	track, err := s.catalog.At(category, index)
	if err != nil {
		s.recordErrorLocked(category, "no tracks available", err)
		s.mu.Unlock()
		return err
	}

	ln.gen++
	gen := ln.gen
	s.hardCutFadeLocked(ln)

	wasPlaying := ln.status == lanePlaying || ln.status == laneLoading
	old := ln.handle
	ln.handle = domain.InvalidSourceHandle
	ln.cacheKey = ""
	ln.index = index
	ln.track = track
	ln.status = laneIdle

	if old != domain.InvalidSourceHandle {
		defer func() { _ = s.engine.Release(old) }()
	}

	if !wasPlaying {
		s.bus.Publish(domain.NewTrackChangedEvent(category, track, index))
		s.mu.Unlock()
		return nil
	}

	ln.status = laneLoading
	volume := ln.volume
	s.mu.Unlock()

	handle, cacheKey, err := s.buildSource(track, volume)

	s.mu.Lock()
	if ln.gen != gen {
		s.mu.Unlock()
		if handle != domain.InvalidSourceHandle {
			_ = s.engine.Release(handle)
		}
		return nil
	}

	if err != nil {
		ln.status = laneIdle
		s.recordErrorLocked(category, "could not load "+track.Title, err)
		s.mu.Unlock()
		return err
	}

	if err := s.engine.Play(handle); err != nil {
		ln.status = laneIdle
		s.recordErrorLocked(category, "playback was rejected", err)
		s.mu.Unlock()
		_ = s.engine.Release(handle)
		return err
	}

	ln.handle = handle
	ln.cacheKey = cacheKey
	ln.track = track
	ln.status = lanePlaying
	s.syncLaneLocked(ln)
	s.bus.Publish(domain.NewTrackChangedEvent(category, track, index))
	s.mu.Unlock()
	return nil
}

// GetState returns a snapshot for the view.
func (s *PlayerService) GetState() domain.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.PlayerState{
		Lanes:       make(map[domain.Category]domain.LaneState, len(s.lanes)),
		Initialized: s.initialized,
		Err:         s.lastErr,
	}
	for category, ln := range s.lanes {
		state.Lanes[category] = domain.LaneState{
			IsPlaying:    ln.status == lanePlaying,
			Volume:       ln.volume,
			CurrentIndex: ln.index,
			TrackTitle:   ln.track.Title,
		}
	}
	return state
}

// Teardown persists lane state, releases all sources, and closes the
// audio context. The service is unusable afterwards.
func (s *PlayerService) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ln := range s.lanes {
		ln.gen++
		s.syncLaneLocked(ln)
		ln.handle = domain.InvalidSourceHandle
		ln.fadingOut = domain.InvalidSourceHandle
		ln.status = laneIdle
	}
	s.initialized = false

	if err := s.engine.Cleanup(); err != nil {
		s.logger.Warn("engine cleanup failed", slog.Any("error", err))
		return err
	}
	s.logger.Info("player torn down")
	return nil
}

// laneLocked validates the common operation preconditions.
func (s *PlayerService) laneLocked(category domain.Category) (*lane, error) {
	if !s.initialized {
		return nil, domain.ErrNotInitialized
	}
	ln, ok := s.lanes[category]
	if !ok {
		return nil, domain.ErrUnknownCategory
	}
	return ln, nil
}

// recordErrorLocked stores the single human-readable error string and
// publishes the matching event. Later successes clear it.
func (s *PlayerService) recordErrorLocked(category domain.Category, message string, err error) {
	s.lastErr = message
	s.logger.Warn(message,
		slog.String("category", string(category)),
		slog.Any("error", err))
	s.bus.Publish(domain.NewPlayerErrorEvent(category, message, err))
}

// syncLaneLocked writes the lane's playback state to the cache,
// best-effort.
func (s *PlayerService) syncLaneLocked(ln *lane) {
	if ln.cacheKey == "" {
		return
	}
	record := domain.PlaybackRecord{
		Volume:    ln.volume,
		IsPlaying: ln.status == lanePlaying,
	}
	if ln.handle != domain.InvalidSourceHandle {
		if pos, err := s.engine.Position(ln.handle); err == nil {
			record.Position = pos
		}
	}
	if err := s.cache.SetPlaybackState(ln.cacheKey, record); err != nil {
		s.logger.Debug("playback state sync failed",
			slog.String("category", string(ln.category)),
			slog.Any("error", err))
	}
}

// buildSource resolves a track, serves audio from the cache when
// possible, and creates the engine source. A resolved URL that fails to
// load is retried once with the track's inline fallback URL.
//
// Called without s.mu held.
func (s *PlayerService) buildSource(track domain.Track, volume int) (domain.SourceHandle, string, error) {
	resolved, err := s.resolver.Resolve(track)
	if err != nil {
		return domain.InvalidSourceHandle, "", err
	}
	cacheKey := resolver.CacheKey(resolved)

	source := resolved
	if local, ok := s.cache.Audio(cacheKey); ok {
		source = local
	} else if local, ok := s.fetchToCache(resolved, cacheKey, &track); ok {
		source = local
	}

	handle, err := s.engine.CreateSource(source, volume)
	if err == nil {
		return handle, cacheKey, nil
	}

	fallbackURL, fbErr := s.resolver.ResolveFallback(track)
	if fbErr != nil || fallbackURL == resolved {
		return domain.InvalidSourceHandle, "", err
	}

	s.logger.Warn("source load failed, trying fallback",
		slog.String("track", track.ID),
		slog.Any("error", err))

	handle, fbErr = s.engine.CreateSource(fallbackURL, volume)
	if fbErr != nil {
		// Surface the original failure, not the fallback's.
		return domain.InvalidSourceHandle, "", err
	}
	return handle, resolver.CacheKey(fallbackURL), nil
}

// fetchToCache downloads a remote URL into the audio cache and backfills
// track metadata from the file's embedded tags. Best-effort: any failure
// just means the engine fetches the URL itself.
func (s *PlayerService) fetchToCache(url, cacheKey string, track *domain.Track) (string, bool) {
	if len(url) < 4 || url[:4] != "http" {
		return "", false
	}

	resp, err := s.client.Get(url)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	path, err := s.cache.PutAudio(cacheKey, resp.Body)
	if err != nil {
		s.logger.Debug("audio cache write failed",
			slog.String("url", url),
			slog.Any("error", err))
		return "", false
	}

	media.Describe(path, track)
	return path, true
}
