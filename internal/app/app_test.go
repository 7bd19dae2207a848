package app

import (
	"testing"

	fynetest "fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietroom/quietroom/internal/config"
	"github.com/quietroom/quietroom/internal/domain"
)

func testOptions() Options {
	return Options{
		AppID:          "app.quietroom.test",
		Config:         config.Default(),
		UseMockAudio:   true,
		UseMemoryCache: true,
		TestFyneApp:    fynetest.NewApp(),
	}
}

func TestNewApplication(t *testing.T) {
	application, err := NewApplication(testOptions())
	require.NoError(t, err)
	require.NotNil(t, application)
	defer application.Shutdown()

	assert.NotNil(t, application.Player())
	assert.NotNil(t, application.eventBus)
	assert.NotNil(t, application.audioEngine)
	assert.NotNil(t, application.cache)
	assert.NotNil(t, application.mainWindow)
	assert.NotNil(t, application.presenter)
}

func TestNewApplicationInitializesDegraded(t *testing.T) {
	// The default storage endpoint is unreachable in tests, so startup
	// falls back to the placeholder catalog instead of failing.
	application, err := NewApplication(testOptions())
	require.NoError(t, err)
	defer application.Shutdown()

	state := application.Player().GetState()
	assert.True(t, state.Initialized)
	assert.Equal(t, "Placeholder", state.Lane(domain.CategoryBrown).TrackTitle)
	assert.Equal(t, "Placeholder", state.Lane(domain.CategoryRain).TrackTitle)
	assert.False(t, state.Lane(domain.CategoryBrown).IsPlaying)
}

func TestNewApplicationNilConfig(t *testing.T) {
	opts := testOptions()
	opts.Config = nil

	application, err := NewApplication(opts)
	require.NoError(t, err)
	defer application.Shutdown()

	assert.True(t, application.Player().GetState().Initialized)
}

func TestApplicationShutdownIsIdempotent(t *testing.T) {
	application, err := NewApplication(testOptions())
	require.NoError(t, err)

	application.Shutdown()
	assert.NotPanics(t, func() { application.Shutdown() })
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, "app.quietroom", opts.AppID)
	require.NotNil(t, opts.Config)
	assert.NotZero(t, opts.Config.Audio.SampleRate)
}
