package app

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// fakeConn records frames instead of writing them to a socket.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) received() []core.OutFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.OutFrame, 0, len(c.frames))
	for _, f := range c.frames {
		var of core.OutFrame
		if err := json.Unmarshal(f, &of); err == nil {
			out = append(out, of)
		}
	}
	return out
}

func (c *fakeConn) count(typ string) int {
	n := 0
	for _, f := range c.received() {
		if f.Type == typ {
			n++
		}
	}
	return n
}

func (c *fakeConn) ofType(typ string) []core.OutFrame {
	var out []core.OutFrame
	for _, f := range c.received() {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

var sessionClock = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestSession builds a session with a predictable id; Since increases
// with every call so ConnectionsFor order is deterministic.
func newTestSession(user domain.UserID, id string) (*core.Session, *fakeConn) {
	conn := &fakeConn{}
	sessionClock = sessionClock.Add(time.Second)
	return &core.Session{
		ID:     core.ConnID(id),
		User:   user,
		Since:  sessionClock,
		Signal: conn,
	}, conn
}
