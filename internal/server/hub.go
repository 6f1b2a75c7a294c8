package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/hairtype/internal/hairtype"
	"github.com/ayusman/hairtype/internal/session"
)

// Hub fans session output out to preview streams and WebSocket clients.
// It implements session.Consumer. Slow subscribers drop frames instead of
// holding up the session loop.
type Hub struct {
	mu      sync.RWMutex
	frames  map[chan []byte]struct{}
	clients map[chan []byte]struct{}
	latest  []byte
	log     logrus.FieldLogger
}

// NewHub creates an empty Hub.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		frames:  make(map[chan []byte]struct{}),
		clients: make(map[chan []byte]struct{}),
		log:     log.WithField("component", "hub"),
	}
}

type categoryMessage struct {
	Category   hairtype.Category `json:"category"`
	Title      string            `json:"title"`
	Confidence float64           `json:"confidence"`
}

type resultMessage struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id"`
	Seq        int               `json:"seq"`
	CapturedAt time.Time         `json:"captured_at"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Mirrored   bool              `json:"mirrored"`
	Threshold  float64           `json:"threshold"`
	Categories []categoryMessage `json:"categories"`
}

type failureMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// HandleResult publishes the annotated frame and a JSON summary.
func (h *Hub) HandleResult(r session.Result) {
	entries := r.Set.Entries()
	categories := make([]categoryMessage, len(entries))
	for i, e := range entries {
		categories[i] = categoryMessage{
			Category:   e.Category,
			Title:      hairtype.Lookup(string(e.Category)).Title,
			Confidence: e.Confidence,
		}
	}

	msg, err := json.Marshal(resultMessage{
		Type:       "result",
		SessionID:  r.SessionID,
		Seq:        r.Seq,
		CapturedAt: r.CapturedAt,
		Width:      r.Width,
		Height:     r.Height,
		Mirrored:   r.Mirrored,
		Threshold:  r.Threshold,
		Categories: categories,
	})
	if err != nil {
		h.log.WithError(err).Error("failed to encode result")
		return
	}

	h.mu.Lock()
	h.latest = r.Image
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.frames {
		offer(ch, r.Image)
	}
	for ch := range h.clients {
		offer(ch, msg)
	}
}

// HandleFailure tells WebSocket clients why the session ended.
func (h *Hub) HandleFailure(sessionID string, err error) {
	msg, merr := json.Marshal(failureMessage{
		Type:      "failure",
		SessionID: sessionID,
		Error:     err.Error(),
	})
	if merr != nil {
		h.log.WithError(merr).Error("failed to encode failure")
		return
	}

	h.mu.Lock()
	h.latest = nil
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		offer(ch, msg)
	}
}

// Latest returns the most recent annotated frame, or nil.
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// SubscribeFrames registers a preview subscriber. Call the returned function
// to unsubscribe.
func (h *Hub) SubscribeFrames() (<-chan []byte, func()) {
	return h.subscribe(h.frames, 1)
}

// SubscribeMessages registers a JSON message subscriber. Call the returned
// function to unsubscribe.
func (h *Hub) SubscribeMessages() (<-chan []byte, func()) {
	return h.subscribe(h.clients, 16)
}

// Subscribers returns the number of preview and message subscribers.
func (h *Hub) Subscribers() (frames, messages int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.frames), len(h.clients)
}

func (h *Hub) subscribe(set map[chan []byte]struct{}, buffer int) (<-chan []byte, func()) {
	ch := make(chan []byte, buffer)

	h.mu.Lock()
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(set, ch)
			h.mu.Unlock()
		})
	}
}

// offer delivers data without blocking. When the buffer is full the oldest
// queued item is dropped.
func offer(ch chan []byte, data []byte) {
	for {
		select {
		case ch <- data:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
