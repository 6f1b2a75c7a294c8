package tray

import (
	"errors"
	"testing"
)

func TestTray_HandleCamera(t *testing.T) {
	tr := New(true)

	var calls []bool
	tr.OnCamera(func(on bool) error {
		calls = append(calls, on)
		return nil
	})

	tr.handleCamera()
	if !tr.CameraOn() {
		t.Error("camera should be on after first click")
	}
	tr.handleCamera()
	if tr.CameraOn() {
		t.Error("camera should be off after second click")
	}

	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Errorf("callback calls = %v, want [true false]", calls)
	}
}

func TestTray_HandleCameraError(t *testing.T) {
	tr := New(true)
	tr.OnCamera(func(on bool) error { return errors.New("camera device unavailable") })

	tr.handleCamera()
	if tr.CameraOn() {
		t.Error("camera state must not change when the callback fails")
	}
}

func TestTray_HandleCameraSyncsState(t *testing.T) {
	tests := []struct {
		name     string
		shown    bool
		active   bool
		wantCall bool
	}{
		{name: "started elsewhere", shown: false, active: true, wantCall: false},
		{name: "ended elsewhere", shown: true, active: false, wantCall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(false)
			tr.SetCameraOn(tt.shown)
			tr.OnActive(func() bool { return tt.active })

			var calls []bool
			tr.OnCamera(func(on bool) error {
				calls = append(calls, on)
				return nil
			})

			tr.handleCamera()

			if len(calls) != 1 || calls[0] != tt.wantCall {
				t.Errorf("callback calls = %v, want [%v]", calls, tt.wantCall)
			}
			if tr.CameraOn() != tt.wantCall {
				t.Errorf("CameraOn() = %v, want %v", tr.CameraOn(), tt.wantCall)
			}
		})
	}
}

func TestTray_HandleMirror(t *testing.T) {
	tr := New(true)

	var got []bool
	tr.OnMirror(func(m bool) { got = append(got, m) })

	tr.handleMirror()
	tr.handleMirror()

	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("mirror callbacks = %v, want [false true]", got)
	}
	if !tr.Mirrored() {
		t.Error("Mirrored() should be true after two toggles")
	}
}

func TestTray_HandleOpen(t *testing.T) {
	tr := New(false)
	opened := false
	tr.OnOpen(func() { opened = true })

	tr.handleOpen()
	if !opened {
		t.Error("open callback not called")
	}
}

func TestTray_SetLast(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
		want       string
	}{
		{name: "none", categories: nil, want: "Last: none"},
		{name: "one", categories: []string{"Curly"}, want: "Last: Curly"},
		{name: "several", categories: []string{"Wavy", "Curly"}, want: "Last: Wavy, Curly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(false)
			tr.SetLast(tt.categories)
			if got := tr.Last(); got != tt.want {
				t.Errorf("Last() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCameraTitle(t *testing.T) {
	if cameraTitle(true) == cameraTitle(false) {
		t.Error("camera titles should differ by state")
	}
}
