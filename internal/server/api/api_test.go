package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/hairtype/internal/app"
	"github.com/ayusman/hairtype/internal/capture"
	"github.com/ayusman/hairtype/internal/detector"
	"github.com/ayusman/hairtype/internal/fixtures"
	"github.com/ayusman/hairtype/internal/hairtype"
	"github.com/ayusman/hairtype/internal/logging"
	"github.com/ayusman/hairtype/internal/session"
	"github.com/ayusman/hairtype/internal/store"
)

type testEnv struct {
	app      *app.App
	camera   *capture.MockCamera
	detector *detector.MockDetector
	store    *store.Store
}

// newTestEnv creates an App backed by an in-memory store, a mock camera and a
// mock detector preset with wavy and curly detections.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	frames, err := fixtures.Sequence(2, 64, 48)
	require.NoError(t, err)
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
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return &testEnv{app: a, camera: cam, detector: det, store: s}
}

func multipartUpload(t *testing.T, image []byte, threshold string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if image != nil {
		fw, err := mw.CreateFormFile("image", "hair.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	if threshold != "" {
		require.NoError(t, mw.WriteField("threshold", threshold))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestGuidanceHandler(t *testing.T) {
	handler := NewGuidanceHandler()

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/guidance", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp listGuidanceResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Guidance, 4)
		assert.Equal(t, hairtype.Straight, resp.Guidance[0].Category)
	})

	t.Run("known category is case-insensitive", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/guidance/Curly", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var g hairtype.Guidance
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&g))
		assert.True(t, g.Known)
		assert.Equal(t, hairtype.Curly, g.Category)
	})

	t.Run("unknown category gets placeholder", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/guidance/unknown_tag", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var g hairtype.Guidance
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&g))
		assert.False(t, g.Known)
		assert.Equal(t, hairtype.Unavailable, g.Description)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/guidance", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestDetectHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := NewDetectHandler(env.app, 0, logging.Discard())

	png, err := fixtures.PNG(320, 240)
	require.NoError(t, err)

	t.Run("detects with explicit threshold", func(t *testing.T) {
		body, contentType := multipartUpload(t, png, "0.5")
		req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp detectResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

		require.Len(t, resp.Categories, 2)
		assert.Equal(t, hairtype.Wavy, resp.Categories[0].Category)
		assert.Equal(t, 0.9, resp.Categories[0].Confidence)
		assert.True(t, resp.Categories[0].Guidance.Known)
		assert.Equal(t, hairtype.Curly, resp.Categories[1].Category)
		assert.Len(t, resp.Detections, 2)
		assert.Equal(t, [4]int{40, 30, 260, 300}, resp.Detections[0].Box)
		assert.Equal(t, 320, resp.Width)
		assert.Equal(t, 240, resp.Height)

		img, err := base64.StdEncoding.DecodeString(resp.AnnotatedImage)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(img, []byte{0xFF, 0xD8}), "annotated image should be JPEG")
	})

	t.Run("defaults to session threshold", func(t *testing.T) {
		require.NoError(t, env.app.SetThreshold(0.92))
		t.Cleanup(func() { env.app.SetThreshold(0.5) })

		body, contentType := multipartUpload(t, png, "")
		req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp detectResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Categories, 1)
		assert.Equal(t, hairtype.Curly, resp.Categories[0].Category)
		assert.Equal(t, 0.92, resp.Threshold)
	})

	t.Run("nothing detected", func(t *testing.T) {
		body, contentType := multipartUpload(t, png, "0.99")
		req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp detectResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Empty(t, resp.Categories)
		assert.NotEmpty(t, resp.AnnotatedImage)
	})

	tests := []struct {
		name      string
		image     []byte
		threshold string
	}{
		{name: "threshold above one", image: png, threshold: "1.5"},
		{name: "negative threshold", image: png, threshold: "-0.2"},
		{name: "threshold not a number", image: png, threshold: "high"},
		{name: "missing image", image: nil, threshold: "0.5"},
		{name: "corrupt image", image: []byte("definitely not a png"), threshold: "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := env.detector.Calls()

			body, contentType := multipartUpload(t, tt.image, tt.threshold)
			req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, calls, env.detector.Calls(), "detector must not run")
		})
	}

	t.Run("detector failure", func(t *testing.T) {
		env.detector.SetError(fmt.Errorf("model crashed"))
		t.Cleanup(func() { env.detector.SetError(nil) })

		body, contentType := multipartUpload(t, png, "0.5")
		req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/detect", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestDetectHandler_UploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	handler := NewDetectHandler(env.app, 1024, logging.Discard())

	// The size check runs before decoding, so the bytes need not be an image.
	body, contentType := multipartUpload(t, bytes.Repeat([]byte{0x89}, 8*1024), "0.5")
	req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, 0, env.detector.Calls())

	// A small upload still goes through under the same limit.
	small, err := fixtures.PNG(8, 8)
	require.NoError(t, err)
	require.Less(t, len(small), 512)
	body, contentType = multipartUpload(t, small, "0.5")
	req = httptest.NewRequest(http.MethodPost, "/api/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSessionHandler_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionHandler(env.app, logging.Discard())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}
	decode := func(rec *httptest.ResponseRecorder) map[string]any {
		var m map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
		return m
	}

	rec := do(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(rec)
	assert.Equal(t, "idle", status["state"])
	assert.Equal(t, false, status["active"])

	// Stop while idle is a no-op.
	rec = do(http.MethodPost, "/api/session/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.camera.Closes())

	rec = do(http.MethodPost, "/api/session/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(rec)["active"])

	rec = do(http.MethodPost, "/api/session/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, env.camera.Opens())

	rec = do(http.MethodPost, "/api/session/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode(rec)["state"])
	assert.Equal(t, 1, env.camera.Closes())
}

func TestSessionHandler_DeviceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.camera.SetOpenError(fmt.Errorf("%w: device 0", capture.ErrDeviceUnavailable))
	handler := NewSessionHandler(env.app, logging.Discard())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/start", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, session.Idle, env.app.Status().State)
}

func TestSessionHandler_Settings(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionHandler(env.app, logging.Discard())

	put := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/session/settings", strings.NewReader(body)))
		return rec
	}

	rec := put(`{"threshold": 0.3, "mirrored": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := env.app.Status()
	assert.Equal(t, 0.3, status.Threshold)
	assert.False(t, status.Mirrored)

	saved, err := env.store.Settings().Float(store.KeyThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0.3, saved)

	// Partial update leaves the threshold alone.
	rec = put(`{"mirrored": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.3, env.app.Status().Threshold)
	assert.True(t, env.app.Status().Mirrored)

	// Invalid threshold rejects the whole request.
	rec = put(`{"threshold": 1.5, "mirrored": false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0.3, env.app.Status().Threshold)
	assert.True(t, env.app.Status().Mirrored)

	rec = put(`not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/settings", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionHandler_SettingsApplyToRunningSession(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionHandler(env.app, logging.Discard())

	results := make(chan session.Result, 64)
	env.app.AddConsumer(session.ConsumerFuncs{Result: func(r session.Result) {
		select {
		case results <- r:
		default:
		}
	}})

	require.NoError(t, env.app.Start())
	defer env.app.Stop()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/session/settings", strings.NewReader(`{"threshold": 0.92}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case r := <-results:
			if r.Threshold == 0.92 {
				assert.Equal(t, []hairtype.Category{hairtype.Curly}, r.Set.Categories())
				return
			}
		case <-deadline:
			t.Fatal("no frame processed with the new threshold")
		}
	}
}

func TestSessionHandler_NotFound(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionHandler(env.app, logging.Discard())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/bogus", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
