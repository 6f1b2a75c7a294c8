package detector

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/hairtype/internal/hairtype"
)

// ErrInvalidThreshold is returned when a confidence threshold lies outside [0, 1].
var ErrInvalidThreshold = errors.New("confidence threshold must be within [0, 1]")

// Detector defines the interface for hair texture detection backends.
type Detector interface {
	// Predict analyzes a frame and returns the detections whose confidence is at
	// least threshold, in the order the model produced them.
	// Returns an empty slice if nothing is detected.
	Predict(frame *gocv.Mat, threshold float64) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hair detection backends.
type Config struct {
	// ModelPath is the ONNX model file used by YOLODetector.
	ModelPath string

	// ScriptPath is the helper script used by ServiceDetector. When empty the
	// usual locations are searched.
	ScriptPath string

	// ServiceModel is the ultralytics weights file passed to the helper. When
	// empty the helper uses its bundled default.
	ServiceModel string

	// Classes maps model class indices to category labels. The default follows
	// the alphabetical order used when the model was exported.
	Classes []string

	// InputSize is the square input resolution of the network (default: 640).
	InputSize int

	// NMSThreshold is the IoU threshold for non-maximum suppression (0.0-1.0).
	NMSThreshold float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Classes: []string{
			string(hairtype.Coily),
			string(hairtype.Curly),
			string(hairtype.Straight),
			string(hairtype.Wavy),
		},
		InputSize:    640,
		NMSThreshold: 0.45,
	}
}
