package capture

import (
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back pre-recorded frames for testing.
// Without loop, reads past the last frame return io.EOF.
type MockCamera struct {
	frames  []*gocv.Mat
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
	fps     int

	openErr  error
	openGate chan struct{}
	attempts int

	failAt  int
	failErr error
	opens   int
	closes  int
	reads   int
	gate    chan struct{}
}

func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
	}
}

// Kind reports KindStream.
func (c *MockCamera) Kind() SourceKind {
	return KindStream
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	c.attempts++
	gate := c.openGate
	c.mu.Unlock()

	// Block like a slow device until the test releases the open.
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.opens++
	c.running = true
	c.index = 0
	c.reads = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()

	// Block like a real device until the test releases a frame.
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	c.reads++
	if c.failAt > 0 && c.reads == c.failAt {
		return nil, c.failErr
	}

	if len(c.frames) == 0 {
		return nil, io.EOF
	}

	if c.index >= len(c.frames) {
		if !c.loop {
			return nil, io.EOF
		}
		c.index = 0
	}

	// Clone the frame so the original isn't modified
	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

// SetFPS records the requested rate. Playback speed is not throttled.
func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fps == 0 {
		return DefaultFPS
	}
	return c.fps
}

// SetOpenError makes Open fail with err. Pass nil to clear.
func (c *MockCamera) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// FailAt makes the n-th read (1-based) after Open return err.
// Zero disables failure injection.
func (c *MockCamera) FailAt(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAt = n
	c.failErr = err
}

// Gate makes every ReadFrame wait for a value on the returned channel.
// Each send releases one read.
func (c *MockCamera) Gate() chan<- struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	return c.gate
}

// GateOpen makes every Open wait for a value on the returned channel.
func (c *MockCamera) GateOpen() chan<- struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openGate = make(chan struct{})
	return c.openGate
}

// OpenAttempts returns how many times Open was entered, including calls still
// waiting on GateOpen.
func (c *MockCamera) OpenAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Opens returns how many times Open succeeded.
func (c *MockCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Closes returns how many times Close was called.
func (c *MockCamera) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}
