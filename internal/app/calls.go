package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrCallExists   = errors.New("call already exists")
	ErrCallNotFound = errors.New("call not found")
	ErrNotInCall    = errors.New("not a party of the call")
)

type CallState uint8

const (
	CallRinging CallState = iota + 1
	CallActive
)

// Outcome is how a call left the tracker.
type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"
	OutcomeEnded     Outcome = "ended"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeDropped   Outcome = "disconnected"
)

type CallInfo struct {
	ID     domain.CallID
	Caller domain.UserID
	Callee domain.UserID
	State  CallState
}

// Peer returns the other party of u.
func (c CallInfo) Peer(u domain.UserID) domain.UserID {
	if u == c.Caller {
		return c.Callee
	}
	return c.Caller
}

// Stopper is the part of *time.Timer the tracker uses.
type Stopper interface{ Stop() bool }

type call struct {
	CallInfo
	timer Stopper
}

// CallTracker holds ringing and active calls. Every resolution removes the
// call under the lock, so whichever of cancel/end/reject/timeout gets there
// first wins and the others become no-ops.
type CallTracker struct {
	mu    sync.Mutex
	calls map[domain.CallID]*call

	RingTimeout time.Duration
	OnTimeout   func(CallInfo)
	Metrics     *observability.Metrics

	AfterFunc func(time.Duration, func()) Stopper
}

func NewCallTracker(ringTimeout time.Duration) *CallTracker {
	if ringTimeout <= 0 {
		ringTimeout = 30 * time.Second
	}
	return &CallTracker{
		calls:       make(map[domain.CallID]*call),
		RingTimeout: ringTimeout,
		AfterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Ring registers a new ringing call and arms its timeout.
func (t *CallTracker) Ring(id domain.CallID, caller, callee domain.UserID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[id]; ok {
		return ErrCallExists
	}
	c := &call{CallInfo: CallInfo{ID: id, Caller: caller, Callee: callee, State: CallRinging}}
	c.timer = t.AfterFunc(t.RingTimeout, func() { t.expire(c) })
	t.calls[id] = c
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("caller", string(caller)).Str("callee", string(callee)).Msg("ringing")
	return nil
}

// Answer moves a ringing call to active. Only the callee may answer.
func (t *CallTracker) Answer(id domain.CallID, by domain.UserID) (CallInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return CallInfo{}, ErrCallNotFound
	}
	if by != c.Callee {
		return CallInfo{}, ErrNotInCall
	}
	if c.State == CallRinging {
		c.timer.Stop()
		c.State = CallActive
		t.Metrics.CallResolved("answered")
	}
	return c.CallInfo, nil
}

// Resolve removes the call. ErrCallNotFound means another resolution got
// there first and there is nothing to tell anyone.
func (t *CallTracker) Resolve(id domain.CallID, by domain.UserID, outcome Outcome) (CallInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return CallInfo{}, ErrCallNotFound
	}
	if by != c.Caller && by != c.Callee {
		return CallInfo{}, ErrNotInCall
	}
	t.removeLocked(c, outcome)
	return c.CallInfo, nil
}

// Lookup returns the call if it is still ringing or active.
func (t *CallTracker) Lookup(id domain.CallID) (CallInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return CallInfo{}, false
	}
	return c.CallInfo, true
}

// DropUser resolves every call the user is part of.
func (t *CallTracker) DropUser(u domain.UserID) []CallInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []CallInfo
	for _, c := range t.calls {
		if c.Caller == u || c.Callee == u {
			t.removeLocked(c, OutcomeDropped)
			out = append(out, c.CallInfo)
		}
	}
	return out
}

func (t *CallTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *CallTracker) removeLocked(c *call, outcome Outcome) {
	c.timer.Stop()
	delete(t.calls, c.ID)
	t.Metrics.CallResolved(string(outcome))
	log.Info().Str("module", "app.calls").Str("call", string(c.ID)).Str("outcome", string(outcome)).Msg("call resolved")
}

// expire runs on the timer goroutine. The identity check guards against a
// timer that fires after the call was resolved, or after the id was reused.
func (t *CallTracker) expire(c *call) {
	t.mu.Lock()
	cur, ok := t.calls[c.ID]
	if !ok || cur != c || c.State != CallRinging {
		t.mu.Unlock()
		return
	}
	t.removeLocked(c, OutcomeTimeout)
	info := c.CallInfo
	t.mu.Unlock()

	if t.OnTimeout != nil {
		t.OnTimeout(info)
	}
}
