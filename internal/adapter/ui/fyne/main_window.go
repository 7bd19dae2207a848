package fyne

import (
	"sync"

	fyneapp "fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/quietroom/quietroom/internal/domain"
)

const (
	appName      = "QuietRoom"
	windowWidth  = 420
	windowHeight = 320
)

// laneCard groups the widgets of one playback lane.
type laneCard struct {
	heading      *widget.Label
	title        *widget.Label
	toggleButton *widget.Button
	skipButton   *widget.Button
	volumeSlider *widget.Slider
	box          *fyneapp.Container
}

// MainWindow is the main UI window implementing the UIView interface.
//
// The MainWindow follows the MVP pattern:
// - It's a "dumb view" that just displays data
// - All business logic is in the Presenter
// - User interactions are forwarded to the Presenter
type MainWindow struct {
	app    fyneapp.App
	window fyneapp.Window

	// UI components
	lanes         map[domain.Category]*laneCard
	shuffleButton *widget.Button
	errorLabel    *widget.Label
	retryButton   *widget.Button
	errorBox      *fyneapp.Container

	// Lifecycle management
	closeOnce sync.Once

	// Presenter (set after construction)
	presenter *Presenter
}

// laneHeading maps a category to its card heading.
func laneHeading(category domain.Category) string {
	switch category {
	case domain.CategoryBrown:
		return "Brown Noise"
	case domain.CategoryRain:
		return "Rain"
	default:
		return string(category)
	}
}

// NewMainWindow creates the main window.
func NewMainWindow(app fyneapp.App) *MainWindow {
	w := &MainWindow{
		app:   app,
		lanes: make(map[domain.Category]*laneCard),
	}

	w.window = app.NewWindow(appName)
	w.buildUI()

	w.window.Resize(fyneapp.Size{
		Width:  windowWidth,
		Height: windowHeight,
	})
	w.window.SetFixedSize(true)

	return w
}

// SetPresenter connects the presenter to this view.
// This must be called before showing the window.
func (w *MainWindow) SetPresenter(presenter *Presenter) {
	w.presenter = presenter
	w.wirePresenterHandlers()
}

// buildUI constructs the UI components.
func (w *MainWindow) buildUI() {
	cards := make([]fyneapp.CanvasObject, 0, len(domain.Categories()))
	for _, category := range domain.Categories() {
		card := w.buildLaneCard(category)
		w.lanes[category] = card
		cards = append(cards, card.box)
	}

	w.shuffleButton = widget.NewButtonWithIcon("Shuffle All", theme.MediaReplayIcon(), nil)

	w.errorLabel = widget.NewLabel("")
	w.errorLabel.Truncation = fyneapp.TextTruncateClip
	w.retryButton = widget.NewButtonWithIcon("Retry", theme.ViewRefreshIcon(), nil)
	w.errorBox = container.NewBorder(nil, nil, nil, w.retryButton, w.errorLabel)
	w.errorBox.Hide()

	content := container.NewVBox(
		cards[0],
		widget.NewSeparator(),
		cards[1],
		widget.NewSeparator(),
		w.shuffleButton,
		w.errorBox,
	)
	w.window.SetContent(container.NewPadded(content))
}

// buildLaneCard constructs the widget group for one lane.
func (w *MainWindow) buildLaneCard(category domain.Category) *laneCard {
	card := &laneCard{}

	card.heading = widget.NewLabel(laneHeading(category))
	card.heading.TextStyle = fyneapp.TextStyle{Bold: true}

	card.title = widget.NewLabel("")
	card.title.Truncation = fyneapp.TextTruncateClip

	card.toggleButton = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), nil)
	card.skipButton = widget.NewButtonWithIcon("", theme.MediaSkipNextIcon(), nil)

	card.volumeSlider = widget.NewSlider(float64(domain.MinVolume), float64(domain.MaxVolume))
	card.volumeSlider.Orientation = widget.Horizontal

	buttons := container.NewHBox(card.toggleButton, card.skipButton)
	header := container.NewBorder(nil, nil, card.heading, buttons, card.title)
	card.box = container.NewVBox(header, card.volumeSlider)

	return card
}

// wirePresenterHandlers connects UI events to presenter handlers.
func (w *MainWindow) wirePresenterHandlers() {
	if w.presenter == nil {
		return
	}

	for category, card := range w.lanes {
		category := category
		card.toggleButton.OnTapped = func() {
			w.presenter.OnToggleClicked(category)
		}
		card.skipButton.OnTapped = func() {
			w.presenter.OnSkipClicked(category)
		}
		card.volumeSlider.OnChanged = func(value float64) {
			w.presenter.OnVolumeChanged(category, value)
		}
	}

	w.shuffleButton.OnTapped = func() {
		w.presenter.OnShuffleClicked()
	}

	w.retryButton.OnTapped = func() {
		w.presenter.OnRetryClicked()
	}
}

// ShowAndRun shows the window and runs the application.
func (w *MainWindow) ShowAndRun() {
	w.window.ShowAndRun()
}

// Close closes the window.
// It's safe to call multiple times (idempotent).
func (w *MainWindow) Close() {
	w.closeOnce.Do(func() {
		w.window.Close()
	})
}

// GetWindow returns the underlying Fyne window.
func (w *MainWindow) GetWindow() fyneapp.Window {
	return w.window
}

// UIView interface implementation

// SetLaneTitle updates the displayed track title of a lane.
func (w *MainWindow) SetLaneTitle(category domain.Category, title string) {
	card, ok := w.lanes[category]
	if !ok {
		return
	}
	card.title.SetText(title)
}

// SetLanePlaying updates the play/pause button of a lane.
func (w *MainWindow) SetLanePlaying(category domain.Category, playing bool) {
	card, ok := w.lanes[category]
	if !ok {
		return
	}
	if playing {
		card.toggleButton.SetIcon(theme.MediaPauseIcon())
	} else {
		card.toggleButton.SetIcon(theme.MediaPlayIcon())
	}
	card.toggleButton.Refresh()
}

// SetLaneVolume updates the volume slider of a lane.
func (w *MainWindow) SetLaneVolume(category domain.Category, volume int) {
	card, ok := w.lanes[category]
	if !ok {
		return
	}
	card.volumeSlider.Value = float64(volume)
	card.volumeSlider.Refresh()
}

// SetError shows or hides the error banner.
func (w *MainWindow) SetError(message string) {
	if message == "" {
		w.errorBox.Hide()
		return
	}
	w.errorLabel.SetText(message)
	w.errorBox.Show()
}

// ShowNotification displays a system notification.
func (w *MainWindow) ShowNotification(title, message string) {
	w.app.SendNotification(fyneapp.NewNotification(title, message))
}

// Verify UIView implementation
var _ UIView = (*MainWindow)(nil)
