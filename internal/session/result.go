package session

import (
	"sync"
	"time"

	"github.com/ayusman/hairtype/internal/detector"
)

// Result is the output of one processed frame.
type Result struct {
	SessionID  string
	Seq        int
	CapturedAt time.Time
	// Image is the annotated frame encoded as JPEG.
	Image     []byte
	Width     int
	Height    int
	Mirrored  bool
	Threshold float64
	Set       detector.DetectionSet
}

// Consumer receives session output. Calls are made from the session loop
// goroutine, one at a time, and should return quickly. A callback must not
// call Controller.Stop or Close directly: Stop waits for the loop that is
// running the callback. Call them from another goroutine instead.
type Consumer interface {
	HandleResult(Result)
	// HandleFailure is called at most once per session, after the session
	// has already returned to Idle.
	HandleFailure(sessionID string, err error)
}

// ConsumerFuncs adapts plain functions to Consumer. Nil fields are skipped.
type ConsumerFuncs struct {
	Result  func(Result)
	Failure func(sessionID string, err error)
}

func (f ConsumerFuncs) HandleResult(r Result) {
	if f.Result != nil {
		f.Result(r)
	}
}

func (f ConsumerFuncs) HandleFailure(sessionID string, err error) {
	if f.Failure != nil {
		f.Failure(sessionID, err)
	}
}

// Fanout delivers to every registered consumer in registration order.
type Fanout struct {
	mu        sync.RWMutex
	consumers []Consumer
}

// Consumers returns a Fanout over cs.
func Consumers(cs ...Consumer) *Fanout {
	f := &Fanout{}
	for _, c := range cs {
		f.Add(c)
	}
	return f
}

// Add registers c. Nil consumers are ignored.
func (f *Fanout) Add(c Consumer) {
	if c == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumers = append(f.consumers, c)
}

func (f *Fanout) snapshot() []Consumer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Consumer(nil), f.consumers...)
}

func (f *Fanout) HandleResult(r Result) {
	for _, c := range f.snapshot() {
		c.HandleResult(r)
	}
}

func (f *Fanout) HandleFailure(sessionID string, err error) {
	for _, c := range f.snapshot() {
		c.HandleFailure(sessionID, err)
	}
}
