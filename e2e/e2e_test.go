package e2e

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/hairtype/internal/app"
	"github.com/ayusman/hairtype/internal/capture"
	"github.com/ayusman/hairtype/internal/detector"
	"github.com/ayusman/hairtype/internal/fixtures"
	"github.com/ayusman/hairtype/internal/logging"
	"github.com/ayusman/hairtype/internal/server"
	"github.com/ayusman/hairtype/internal/store"
)

type stack struct {
	store    *store.Store
	app      *app.App
	camera   *capture.MockCamera
	detector *detector.MockDetector
	ts       *httptest.Server
}

func newStack(t *testing.T, dbPath string) *stack {
	t.Helper()

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	frames, err := fixtures.Sequence(3, 64, 48)
	if err != nil {
		t.Fatalf("fixtures.Sequence() error = %v", err)
	}
	t.Cleanup(func() { fixtures.Close(frames) })

	cam := capture.NewMockCamera(frames, true)
	det := detector.NewMockDetector()
	det.SetDetections(detector.WavyAndCurly())

	a, err := app.New(app.Config{
		Store:     s,
		Threshold: 0.5,
		Mirrored:  true,
		Logger:    logging.Discard(),
		Camera:    cam,
		Backend:   det,
	})
	if err != nil {
		s.Close()
		t.Fatalf("app.New() error = %v", err)
	}

	ts := httptest.NewServer(server.New(server.Config{Service: a, Logger: logging.Discard()}))
	return &stack{store: s, app: a, camera: cam, detector: det, ts: ts}
}

func (s *stack) Close() {
	s.ts.Close()
	s.app.Close()
	s.store.Close()
}

type sessionStatus struct {
	State     string  `json:"state"`
	Active    bool    `json:"active"`
	Threshold float64 `json:"threshold"`
	Mirrored  bool    `json:"mirrored"`
	SessionID string  `json:"session_id"`
	Frames    int     `json:"frames"`
}

func getStatus(t *testing.T, client *http.Client, url string) sessionStatus {
	t.Helper()
	resp, err := client.Get(url + "/api/session")
	if err != nil {
		t.Fatalf("GET /api/session error = %v", err)
	}
	defer resp.Body.Close()

	var status sessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return status
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	st := newStack(t, filepath.Join(t.TempDir(), "data.db"))
	defer st.Close()

	client := st.ts.Client()

	t.Run("Guidance", func(t *testing.T) {
		resp, err := client.Get(st.ts.URL + "/api/guidance")
		if err != nil {
			t.Fatalf("GET /api/guidance error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Guidance []struct {
				Category string `json:"category"`
			} `json:"guidance"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if len(body.Guidance) != 4 {
			t.Errorf("guidance records = %d, want 4", len(body.Guidance))
		}
	})

	t.Run("DetectUpload", func(t *testing.T) {
		img, err := fixtures.JPEG(320, 240)
		if err != nil {
			t.Fatalf("fixtures.JPEG() error = %v", err)
		}

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("image", "photo.jpg")
		fw.Write(img)
		mw.WriteField("threshold", "0.5")
		mw.Close()

		resp, err := client.Post(st.ts.URL+"/api/detect", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatalf("POST /api/detect error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var body struct {
			Categories []struct {
				Category string `json:"category"`
				Guidance struct {
					Title string `json:"title"`
				} `json:"guidance"`
			} `json:"categories"`
		}
		json.NewDecoder(resp.Body).Decode(&body)

		var got []string
		for _, c := range body.Categories {
			got = append(got, c.Category+"/"+c.Guidance.Title)
		}
		if strings.Join(got, ",") != "wavy/Wavy,curly/Curly" {
			t.Errorf("categories = %v, want [wavy/Wavy curly/Curly]", got)
		}
	})

	t.Run("SessionStartStop", func(t *testing.T) {
		resp, err := client.Post(st.ts.URL+"/api/session/start", "application/json", nil)
		if err != nil {
			t.Fatalf("start error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("start status = %d", resp.StatusCode)
		}

		deadline := time.Now().Add(2 * time.Second)
		for getStatus(t, client, st.ts.URL).Frames == 0 {
			if time.Now().After(deadline) {
				t.Fatal("no frames processed")
			}
			time.Sleep(10 * time.Millisecond)
		}

		resp, err = client.Post(st.ts.URL+"/api/session/stop", "application/json", nil)
		if err != nil {
			t.Fatalf("stop error = %v", err)
		}
		resp.Body.Close()

		status := getStatus(t, client, st.ts.URL)
		if status.Active || status.State != "idle" {
			t.Errorf("status after stop = %+v", status)
		}
		if st.camera.Closes() != 1 {
			t.Errorf("camera closes = %d, want 1", st.camera.Closes())
		}
	})

	t.Run("APIStillWorks", func(t *testing.T) {
		resp, err := client.Get(st.ts.URL + "/api/health")
		if err != nil {
			t.Fatalf("health error = %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("health check failed after app operations")
		}
		resp.Body.Close()
	})
}

func TestE2E_SettingsSurviveRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	dbPath := filepath.Join(t.TempDir(), "data.db")

	first := newStack(t, dbPath)
	req, _ := http.NewRequest(http.MethodPut, first.ts.URL+"/api/session/settings",
		strings.NewReader(`{"threshold": 0.8, "mirrored": false}`))
	resp, err := first.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("PUT settings error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT settings status = %d", resp.StatusCode)
	}
	first.Close()

	second := newStack(t, dbPath)
	defer second.Close()

	status := getStatus(t, second.ts.Client(), second.ts.URL)
	if status.Threshold != 0.8 {
		t.Errorf("threshold after restart = %v, want 0.8", status.Threshold)
	}
	if status.Mirrored {
		t.Error("mirror setting should be restored as false")
	}
}
