// Package tray provides the optional desktop system tray for hairtype.
package tray

import (
	"strings"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray menu.
type Tray struct {
	onCamera func(on bool) error
	isActive func() bool
	onMirror func(mirrored bool)
	onOpen   func()
	onQuit   func()
	cameraOn bool
	mirrored bool
	last     string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuCamera *systray.MenuItem
	menuMirror *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a new Tray with the camera off.
func New(mirrored bool) *Tray {
	return &Tray{mirrored: mirrored}
}

// OnCamera sets the callback used to open (true) or close (false) the camera.
// When it returns an error the menu keeps its previous state.
func (t *Tray) OnCamera(fn func(on bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCamera = fn
}

// OnActive sets the function that reports whether a camera session is
// actually running. Sessions can start or end outside the tray, so a click
// reads it before deciding what to do.
func (t *Tray) OnActive(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isActive = fn
}

// OnMirror sets the callback called when the mirror checkbox changes.
func (t *Tray) OnMirror(fn func(mirrored bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMirror = fn
}

// OnOpen sets the callback called when the open-in-browser item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Hairtype")
	systray.SetTooltip("Hairtype hair texture detection")

	t.mu.Lock()
	t.menuCamera = systray.AddMenuItem(cameraTitle(t.cameraOn), "Open or close the camera")
	t.menuMirror = systray.AddMenuItemCheckbox("Mirror camera", "Flip the camera image horizontally", t.mirrored)
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(lastTitle(t.last), "Last detected hair types")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in browser...", "Open the hairtype page")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit hairtype")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuCamera.ClickedCh:
				t.handleCamera()
			case <-t.menuMirror.ClickedCh:
				t.handleMirror()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleCamera flips the camera state through the callback.
func (t *Tray) handleCamera() {
	t.mu.RLock()
	active := t.isActive
	t.mu.RUnlock()
	if active != nil {
		t.SetCameraOn(active())
	}

	t.mu.RLock()
	want := !t.cameraOn
	callback := t.onCamera
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(want); err != nil {
			return
		}
	}
	t.SetCameraOn(want)
}

// handleMirror toggles the mirror checkbox.
func (t *Tray) handleMirror() {
	t.mu.Lock()
	t.mirrored = !t.mirrored
	mirrored := t.mirrored
	if t.menuMirror != nil {
		if mirrored {
			t.menuMirror.Check()
		} else {
			t.menuMirror.Uncheck()
		}
	}
	callback := t.onMirror
	t.mu.Unlock()

	if callback != nil {
		callback(mirrored)
	}
}

// handleOpen handles the open-in-browser menu item click.
func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetCameraOn updates the camera item to match the session state.
func (t *Tray) SetCameraOn(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cameraOn = on
	if t.menuCamera != nil {
		t.menuCamera.SetTitle(cameraTitle(on))
	}
}

// SetLast updates the last detected hair types shown in the menu.
func (t *Tray) SetLast(categories []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = strings.Join(categories, ", ")
	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(t.last))
	}
}

// CameraOn returns whether the tray shows the camera as open.
func (t *Tray) CameraOn() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cameraOn
}

// Mirrored returns the mirror checkbox state.
func (t *Tray) Mirrored() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mirrored
}

// Last returns the text shown for the last detection.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lastTitle(t.last)
}

func cameraTitle(on bool) string {
	if on {
		return "● Close camera"
	}
	return "○ Open camera"
}

func lastTitle(last string) string {
	if last == "" {
		return "Last: none"
	}
	return "Last: " + last
}
