package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/hairtype/internal/hairtype"
)

// Annotation drawing settings.
const (
	boxThickness  = 2
	labelScale    = 0.6
	labelPadding  = 4
	labelBaseline = 6
)

var (
	categoryColors = map[hairtype.Category]color.RGBA{
		hairtype.Straight: {R: 0, G: 165, B: 255, A: 0},
		hairtype.Wavy:     {R: 60, G: 200, B: 60, A: 0},
		hairtype.Curly:    {R: 200, G: 60, B: 200, A: 0},
		hairtype.Coily:    {R: 0, G: 0, B: 128, A: 0},
	}
	fallbackColor = color.RGBA{R: 200, G: 200, B: 200, A: 0}
	textColor     = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Annotate draws a labelled box for every detection onto frame in place.
// Regions are clipped to the frame bounds.
func Annotate(frame *gocv.Mat, detections []Detection) {
	if frame == nil || frame.Empty() {
		return
	}
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	for _, d := range detections {
		r := d.Region.Intersect(bounds)
		if r.Empty() {
			continue
		}
		c, ok := categoryColors[d.Category]
		if !ok {
			c = fallbackColor
		}
		gocv.Rectangle(frame, r, c, boxThickness)

		label := fmt.Sprintf("%s %.2f", d.Category, d.Confidence)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, labelScale, 1)
		top := r.Min.Y - size.Y - 2*labelPadding
		if top < 0 {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+size.X+2*labelPadding, top+size.Y+2*labelPadding)
		gocv.Rectangle(frame, bg, c, -1)
		gocv.PutText(frame, label, image.Pt(bg.Min.X+labelPadding, bg.Max.Y-labelBaseline+2),
			gocv.FontHersheySimplex, labelScale, textColor, 1)
	}
}

// EncodeJPEG encodes a frame as JPEG bytes.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
