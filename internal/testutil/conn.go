package testutil

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/VoiceHub/internal/core"
)

// Message is a decoded outbound event.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RecordingConn is a core.SignalConnection that keeps every frame.
type RecordingConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// Full makes TrySend report backpressure.
	Full bool
}

func NewRecordingConn() *RecordingConn { return &RecordingConn{} }

func (c *RecordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.Full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *RecordingConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *RecordingConn) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.frames))
	for _, f := range c.frames {
		var m Message
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// OfType returns the messages with the given type, in order.
func (c *RecordingConn) OfType(typ string) []Message {
	var out []Message
	for _, m := range c.Messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message of the given type.
func (c *RecordingConn) Last(typ string) (Message, bool) {
	ms := c.OfType(typ)
	if len(ms) == 0 {
		return Message{}, false
	}
	return ms[len(ms)-1], true
}

func (c *RecordingConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
