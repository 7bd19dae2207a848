// Package fyne provides the Fyne UI adapter.
// This package implements the view layer using the Fyne toolkit.
package fyne

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/ports"
	"github.com/quietroom/quietroom/internal/service"
)

// UIView defines the interface for UI updates.
// The actual UI implementation (MainWindow) must implement this interface.
type UIView interface {
	// Lane updates
	SetLaneTitle(category domain.Category, title string)
	SetLanePlaying(category domain.Category, playing bool)
	SetLaneVolume(category domain.Category, volume int)

	// SetError shows the error banner with a retry affordance; an empty
	// message hides it.
	SetError(message string)

	// Notifications
	ShowNotification(title, message string)
}

// Presenter implements the Presenter pattern (MVP architecture).
// It coordinates between the playback controller and the UI, handling all
// event-driven updates.
//
// Responsibilities:
// - Subscribe to events from the event bus
// - Map domain events to UI updates
// - Translate UI commands to controller method calls
//
// Thread-safety: all operations are thread-safe.
type Presenter struct {
	logger *slog.Logger

	player *service.PlayerService

	// Event bus for subscriptions
	EventBus ports.EventBus

	view UIView

	mu           sync.Mutex
	shutdownOnce sync.Once
}

// NewPresenter creates a new presenter and wires it to the event bus.
func NewPresenter(
	logger *slog.Logger,
	player *service.PlayerService,
	eventBus ports.EventBus,
	view UIView,
) *Presenter {
	p := &Presenter{
		logger:   logger,
		player:   player,
		EventBus: eventBus,
		view:     view,
	}

	p.subscribeToEvents()
	p.syncState()

	return p
}

// subscribeToEvents subscribes to all relevant events from the event bus.
func (p *Presenter) subscribeToEvents() {
	subscriptions := map[domain.EventType]domain.EventHandler{
		domain.EventLaneStarted:       p.onLaneStarted,
		domain.EventLanePaused:        p.onLanePaused,
		domain.EventLaneVolume:        p.onLaneVolume,
		domain.EventTrackChanged:      p.onTrackChanged,
		domain.EventCrossfadeDone:     p.onCrossfadeDone,
		domain.EventPlayerInitialized: p.onPlayerInitialized,
		domain.EventPlayerError:       p.onPlayerError,
		domain.EventCatalogShuffled:   p.onCatalogShuffled,
	}

	for eventType, handler := range subscriptions {
		p.EventBus.Subscribe(eventType, handler)
	}
}

// syncState pushes the controller's current snapshot into the view.
func (p *Presenter) syncState() {
	state := p.player.GetState()

	for _, category := range domain.Categories() {
		lane := state.Lane(category)
		p.view.SetLaneTitle(category, lane.TrackTitle)
		p.view.SetLanePlaying(category, lane.IsPlaying)
		p.view.SetLaneVolume(category, lane.Volume)
	}
	p.view.SetError(state.Err)
}

// Event handlers

func (p *Presenter) onLaneStarted(event domain.Event) {
	e, ok := event.(domain.LaneStartedEvent)
	if !ok {
		return
	}

	p.view.SetLaneTitle(e.Category, e.Track.Title)
	p.view.SetLanePlaying(e.Category, true)
	p.view.SetError("")
}

func (p *Presenter) onLanePaused(event domain.Event) {
	e, ok := event.(domain.LanePausedEvent)
	if !ok {
		return
	}

	p.view.SetLanePlaying(e.Category, false)
}

func (p *Presenter) onLaneVolume(event domain.Event) {
	e, ok := event.(domain.LaneVolumeEvent)
	if !ok {
		return
	}

	p.view.SetLaneVolume(e.Category, e.Volume)
}

func (p *Presenter) onTrackChanged(event domain.Event) {
	e, ok := event.(domain.TrackChangedEvent)
	if !ok {
		return
	}

	p.view.SetLaneTitle(e.Category, e.Track.Title)
}

func (p *Presenter) onCrossfadeDone(event domain.Event) {
	e, ok := event.(domain.CrossfadeDoneEvent)
	if !ok {
		return
	}

	// A discarded fade was superseded by a newer action; nothing to show.
	p.logger.Debug("crossfade finished",
		slog.String("category", string(e.Category)),
		slog.Bool("completed", e.Completed))
}

func (p *Presenter) onPlayerInitialized(event domain.Event) {
	e, ok := event.(domain.PlayerInitializedEvent)
	if !ok {
		return
	}

	p.syncState()
	if e.Degraded {
		p.view.SetError("Sound library unavailable, playing placeholders")
	}
}

func (p *Presenter) onPlayerError(event domain.Event) {
	e, ok := event.(domain.PlayerErrorEvent)
	if !ok {
		return
	}

	p.view.SetError(e.Message)
}

func (p *Presenter) onCatalogShuffled(event domain.Event) {
	p.syncState()
	p.view.ShowNotification("Shuffled", "Both sound lists were reshuffled")
}

// UI command handlers (called by the view)

// OnToggleClicked handles a lane play/pause button click.
func (p *Presenter) OnToggleClicked(category domain.Category) {
	if err := p.player.Toggle(category); err != nil {
		p.logger.Error("toggle failed",
			slog.String("category", string(category)),
			slog.Any("error", err))
	}
	p.syncState()
}

// OnSkipClicked handles a lane skip button click.
func (p *Presenter) OnSkipClicked(category domain.Category) {
	if err := p.player.Skip(category); err != nil {
		p.logger.Error("skip failed",
			slog.String("category", string(category)),
			slog.Any("error", err))
	}
}

// OnVolumeChanged handles a lane volume slider change.
func (p *Presenter) OnVolumeChanged(category domain.Category, volume float64) {
	v := domain.ClampVolume(int(volume))
	if err := p.player.SetVolume(category, v); err != nil {
		p.logger.Error("volume change failed",
			slog.String("category", string(category)),
			slog.Any("error", err))
	}
}

// OnShuffleClicked handles the shuffle-all button click.
func (p *Presenter) OnShuffleClicked() {
	if err := p.player.ShuffleAll(); err != nil {
		p.logger.Error("shuffle failed", slog.Any("error", err))
		p.view.ShowNotification("Shuffle Error",
			fmt.Sprintf("Failed to shuffle: %v", err))
	}
}

// OnRetryClicked handles the retry button next to the error banner.
func (p *Presenter) OnRetryClicked() {
	if err := p.player.RetryInitialization(context.Background()); err != nil {
		p.logger.Error("retry failed", slog.Any("error", err))
		return
	}
	p.syncState()
}

// Shutdown tears down the playback controller.
// It's safe to call multiple times (idempotent).
func (p *Presenter) Shutdown() {
	p.shutdownOnce.Do(func() {
		if err := p.player.Teardown(); err != nil {
			p.logger.Warn("teardown failed", slog.Any("error", err))
		}
	})
}
