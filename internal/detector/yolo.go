package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/hairtype/internal/hairtype"
)

// YOLODetector implements Detector with a YOLOv8 ONNX model run through the
// OpenCV DNN module. The network is loaded once and reused for every frame.
type YOLODetector struct {
	config Config
	net    gocv.Net
	mu     sync.Mutex
	closed bool
}

// NewYOLODetector loads the ONNX model named by config.ModelPath.
func NewYOLODetector(config Config) (*YOLODetector, error) {
	if config.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}
	if len(config.Classes) == 0 {
		config.Classes = DefaultConfig().Classes
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}
	if config.NMSThreshold <= 0 {
		config.NMSThreshold = DefaultConfig().NMSThreshold
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model %s", config.ModelPath)
	}

	return &YOLODetector{config: config, net: net}, nil
}

// Predict runs the network on frame and returns the detections at or above threshold.
func (d *YOLODetector) Predict(frame *gocv.Mat, threshold float64) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector is closed")
	}

	height, width := frame.Rows(), frame.Cols()
	maxDim := max(height, width)

	// Pad to a square so the letterbox scale is the same on both axes.
	square := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), maxDim, maxDim, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, width, height))
	frame.CopyTo(&roi)
	roi.Close()

	size := d.config.InputSize
	scale := float32(maxDim) / float32(size)

	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.decode(&output, scale, float32(threshold), image.Rect(0, 0, width, height))
}

// decode converts the (1, 4+classes, candidates) output tensor into detections.
func (d *YOLODetector) decode(output *gocv.Mat, scale, threshold float32, bounds image.Rectangle) ([]Detection, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	numClasses := dims[1] - 4
	candidates := dims[2]

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)

	for i := 0; i < candidates; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			score := output.GetFloatAt3(0, 4+c, i)
			if score > bestScore {
				best, bestScore = c, score
			}
		}
		if best < 0 || bestScore < threshold {
			continue
		}

		x := output.GetFloatAt3(0, 0, i)
		y := output.GetFloatAt3(0, 1, i)
		w := output.GetFloatAt3(0, 2, i)
		h := output.GetFloatAt3(0, 3, i)

		box := image.Rect(
			int((x-w/2)*scale),
			int((y-h/2)*scale),
			int((x+w/2)*scale),
			int((y+h/2)*scale),
		).Intersect(bounds)

		boxes = append(boxes, box)
		scores = append(scores, bestScore)
		classes = append(classes, best)
	}

	if len(boxes) == 0 {
		return []Detection{}, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, threshold, float32(d.config.NMSThreshold))

	detections := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		detections = append(detections, Detection{
			Category:   d.label(classes[idx]),
			Confidence: float64(scores[idx]),
			Region:     boxes[idx],
		})
	}

	return detections, nil
}

func (d *YOLODetector) label(class int) hairtype.Category {
	if class < 0 || class >= len(d.config.Classes) {
		return hairtype.Category(fmt.Sprintf("class_%d", class))
	}
	name := d.config.Classes[class]
	if c, ok := hairtype.Parse(name); ok {
		return c
	}
	return hairtype.Category(name)
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}
