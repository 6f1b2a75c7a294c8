package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/hairtype/internal/hairtype"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	detections []Detection
	err        error
	calls      int
	thresholds []float64
	closed     bool
	onPredict  func(call int)
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the raw detections returned by Predict before threshold filtering.
func (m *MockDetector) SetDetections(detections []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = detections
}

// SetError sets the error that will be returned by Predict.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// OnPredict registers a hook invoked at the start of every Predict call with
// the 1-based call number. Tests use it to interleave Stop requests.
func (m *MockDetector) OnPredict(fn func(call int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPredict = fn
}

// Predict returns the configured detections that meet threshold, or the configured error.
func (m *MockDetector) Predict(frame *gocv.Mat, threshold float64) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	m.thresholds = append(m.thresholds, threshold)
	call := m.calls
	hook := m.onPredict
	detections, err := m.detections, m.err
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return Filter(detections, threshold), nil
}

// Calls returns how many times Predict was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Thresholds returns the thresholds passed to Predict, in call order.
func (m *MockDetector) Thresholds() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.thresholds...)
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// WavyAndCurly returns a preset raw detection list: a wavy head of hair, a
// curly one, and a weaker second wavy box that should be deduplicated.
func WavyAndCurly() []Detection {
	return []Detection{
		{Category: hairtype.Wavy, Confidence: 0.9, Region: image.Rect(40, 30, 260, 300)},
		{Category: hairtype.Curly, Confidence: 0.95, Region: image.Rect(330, 40, 600, 320)},
		{Category: hairtype.Wavy, Confidence: 0.4, Region: image.Rect(60, 280, 200, 460)},
	}
}
