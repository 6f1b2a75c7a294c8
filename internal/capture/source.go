package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrSourceKind is returned when a frame source of the wrong kind is supplied.
var ErrSourceKind = errors.New("wrong frame source kind")

// SourceKind distinguishes single-shot sources from continuous streams.
type SourceKind int

const (
	// KindSingleShot yields exactly one frame and is then exhausted.
	KindSingleShot SourceKind = iota
	// KindStream yields frames until it is closed, ends, or fails.
	KindStream
)

// String returns a short name for the kind.
func (k SourceKind) String() string {
	switch k {
	case KindSingleShot:
		return "single-shot"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Source is anything frames can be acquired from.
type Source interface {
	Kind() SourceKind
}

// SingleShot is a source that yields one frame through Acquire.
type SingleShot interface {
	Source
	Acquire() (*gocv.Mat, error)
}

// RequireKind returns an error wrapping ErrSourceKind unless src is of kind want.
func RequireKind(src Source, want SourceKind) error {
	if src == nil {
		return fmt.Errorf("%w: no source, want %s", ErrSourceKind, want)
	}
	if got := src.Kind(); got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrSourceKind, got, want)
	}
	return nil
}
