// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"

	beepengine "github.com/quietroom/quietroom/internal/adapter/audio/beep"
	"github.com/quietroom/quietroom/internal/adapter/audio/mock"
	memorycache "github.com/quietroom/quietroom/internal/adapter/cache/memory"
	sqlitecache "github.com/quietroom/quietroom/internal/adapter/cache/sqlite"
	"github.com/quietroom/quietroom/internal/adapter/eventbus"
	miniolisting "github.com/quietroom/quietroom/internal/adapter/listing/minio"
	staticlisting "github.com/quietroom/quietroom/internal/adapter/listing/static"
	fyneui "github.com/quietroom/quietroom/internal/adapter/ui/fyne"
	"github.com/quietroom/quietroom/internal/config"
	"github.com/quietroom/quietroom/internal/logger"
	"github.com/quietroom/quietroom/internal/ports"
	"github.com/quietroom/quietroom/internal/resolver"
	"github.com/quietroom/quietroom/internal/service"
)

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Managing the application lifecycle (startup, shutdown)
// - Providing a clean entry point for main.go
type Application struct {
	// Core dependencies
	logger  *slog.Logger
	fyneApp fyne.App

	// Infrastructure
	eventBus    ports.EventBus
	audioEngine ports.AudioEngine
	listing     ports.TrackListing
	cache       ports.PlaybackCache

	// Services
	catalog *service.Catalog
	player  *service.PlayerService

	// UI
	presenter  *fyneui.Presenter
	mainWindow *fyneui.MainWindow
}

// Options holds application construction options.
type Options struct {
	// AppID is the unique application identifier
	AppID string

	// Config is the loaded configuration; nil means config.Default()
	Config *config.Config

	// UseMockAudio swaps in the mock audio engine (for testing)
	UseMockAudio bool

	// UseMemoryCache swaps in the volatile cache (for testing)
	UseMemoryCache bool

	// TestFyneApp allows injecting a test Fyne app (nil for production)
	TestFyneApp fyne.App
}

// DefaultOptions returns the default application options, loading the
// config file from its conventional location when present.
func DefaultOptions() Options {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		cfg = config.Default()
	}
	return Options{
		AppID:  "app.quietroom",
		Config: cfg,
	}
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(opts Options) (*Application, error) {
	app := &Application{}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	// Step 1: Create Fyne application
	if opts.TestFyneApp != nil {
		app.fyneApp = opts.TestFyneApp
	} else {
		app.fyneApp = fyneapp.NewWithID(opts.AppID)
	}

	// Step 2: Create logger
	loggerCfg := logger.DefaultConfig()
	if cfg.LogLevel != "" {
		loggerCfg.Level = logger.ParseLevel(cfg.LogLevel)
	}
	app.logger = logger.New(loggerCfg)
	app.logger.Info("initializing application", slog.String("app_id", opts.AppID))

	// Step 3: Create the event bus
	syncBus := eventbus.NewSyncEventBus()
	syncBus.SetLogger(app.logger.With(slog.String("component", "eventbus")))
	app.eventBus = syncBus

	fetchTimeout := time.Duration(cfg.Audio.FetchTimeoutSeconds * float64(time.Second))

	// Step 4: Create the audio engine
	if opts.UseMockAudio {
		engine := mock.NewEngine()
		engine.SetLogger(app.logger.With(slog.String("engine", "mock")))
		app.audioEngine = engine
	} else {
		engine := beepengine.NewEngine(cfg.Audio.SampleRate, fetchTimeout)
		engine.SetLogger(app.logger.With(slog.String("engine", "beep")))
		app.audioEngine = engine
	}

	// Step 5: Create the track listing
	listing, err := miniolisting.NewListing(miniolisting.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	}, app.logger.With(slog.String("component", "listing")))
	if err != nil {
		return nil, fmt.Errorf("create track listing: %w", err)
	}
	app.listing = listing

	// Step 6: Create the playback cache
	if opts.UseMemoryCache {
		app.cache = memorycache.NewCache("")
	} else {
		cache, err := sqlitecache.Open(cfg.DefaultCacheDir(),
			app.logger.With(slog.String("component", "cache")))
		if err != nil {
			// The cache is an optimization; run without persistence.
			app.logger.Warn("cache unavailable, running without persistence",
				slog.Any("error", err))
			app.cache = memorycache.NewCache("")
		} else {
			app.cache = cache
		}
	}

	// Step 7: Create the resolver and catalog
	res := resolver.New(
		resolver.WithCDNBase(cfg.Resolver.CDNBase),
		resolver.WithProxyBase(cfg.Resolver.ProxyBase),
		resolver.WithForceHTTPS(cfg.Resolver.ForceHTTPS),
	)
	app.catalog = service.NewCatalog()

	// Step 8: Create the playback controller
	app.player = service.NewPlayerService(
		app.logger.With(slog.String("service", "player")),
		app.audioEngine,
		app.listing,
		staticlisting.NewPlaceholderListing(cfg.Resolver.CDNBase),
		app.cache,
		res,
		app.catalog,
		app.eventBus,
		service.PlayerConfig{
			DefaultVolume: cfg.Audio.DefaultVolume,
			Crossfade:     time.Duration(cfg.Audio.CrossfadeSeconds * float64(time.Second)),
			FetchTimeout:  fetchTimeout,
		},
	)

	if err := app.player.Initialize(context.Background()); err != nil {
		// Initialize degrades rather than failing; treat an error as a bug.
		app.logger.Error("player initialization failed", slog.Any("error", err))
	}

	// Step 9: Create the UI and wire the presenter
	app.mainWindow = fyneui.NewMainWindow(app.fyneApp)
	app.presenter = fyneui.NewPresenter(
		app.logger.With(slog.String("component", "presenter")),
		app.player,
		app.eventBus,
		app.mainWindow,
	)
	app.mainWindow.SetPresenter(app.presenter)

	return app, nil
}

// Player exposes the playback controller, mainly for tests.
func (a *Application) Player() *service.PlayerService {
	return a.player
}

// Run starts the application.
// This is called from main.go after the application is created.
func (a *Application) Run() {
	a.logger.Info("QuietRoom started")
	a.mainWindow.ShowAndRun()
}

// Shutdown gracefully shuts down the application.
// This should be called via deferring in main.go.
func (a *Application) Shutdown() {
	a.logger.Info("shutting down application")

	if a.presenter != nil {
		a.presenter.Shutdown()
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close failed", slog.Any("error", err))
		}
	}

	if err := a.eventBus.Close(); err != nil {
		a.logger.Warn("event bus close failed", slog.Any("error", err))
	}

	a.logger.Info("application shutdown complete")
}
