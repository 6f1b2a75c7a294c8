// Package fixtures builds synthetic frames and encoded images for tests.
package fixtures

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Image returns a w x h gradient. The top-left pixel is pure white so tests
// can tell whether a frame was mirrored.
func Image(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / max(w, 1)), G: uint8(y * 255 / max(h, 1)), B: 64, A: 255})
		}
	}
	img.Set(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

// Encode renders a synthetic w x h image in the given format.
func Encode(w, h int, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Image(w, h), format); err != nil {
		return nil, fmt.Errorf("encode %dx%d %s: %w", w, h, format, err)
	}
	return buf.Bytes(), nil
}

// PNG is Encode with imaging.PNG.
func PNG(w, h int) ([]byte, error) {
	return Encode(w, h, imaging.PNG)
}

// JPEG is Encode with imaging.JPEG.
func JPEG(w, h int) ([]byte, error) {
	return Encode(w, h, imaging.JPEG)
}

// Frame returns a synthetic BGR frame. The caller closes it.
func Frame(w, h int) (*gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(Image(w, h))
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return &mat, nil
}

// Sequence returns n synthetic frames for camera playback.
func Sequence(n, w, h int) ([]*gocv.Mat, error) {
	var frames []*gocv.Mat
	for i := 0; i < n; i++ {
		frame, err := Frame(w, h)
		if err != nil {
			// Clean up already built frames
			Close(frames)
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Close releases every frame.
func Close(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
