package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	// Register WebP alongside the JPEG and PNG decoders imaging pulls in.
	_ "golang.org/x/image/webp"
)

var (
	// ErrExhausted is returned by Acquire once the single frame has been taken.
	ErrExhausted = errors.New("frame source exhausted")

	// ErrDecode is returned by DecodeStill for data that is not a usable image.
	ErrDecode = errors.New("cannot decode image")
)

// Still is a single-shot frame source built from one decoded image.
type Still struct {
	mu    sync.Mutex
	frame *gocv.Mat
}

// NewStill wraps an already decoded frame. The Still takes ownership of frame.
func NewStill(frame *gocv.Mat) *Still {
	return &Still{frame: frame}
}

// DecodeStill decodes an uploaded JPEG, PNG or WebP image into a Still.
// EXIF orientation is applied so phone photos are upright.
func DecodeStill(r io.Reader) (*Still, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	return NewStill(&mat), nil
}

// Kind reports KindSingleShot.
func (s *Still) Kind() SourceKind {
	return KindSingleShot
}

// Acquire returns the frame and transfers its ownership to the caller.
// Every later call returns ErrExhausted.
func (s *Still) Acquire() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame == nil {
		return nil, ErrExhausted
	}
	frame := s.frame
	s.frame = nil
	return frame, nil
}

// Close releases the frame if it was never acquired.
func (s *Still) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame != nil {
		s.frame.Close()
		s.frame = nil
	}
	return nil
}
