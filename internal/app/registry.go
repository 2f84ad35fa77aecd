package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/observability"
	"github.com/rs/zerolog/log"
)

// Edge is an occupancy change of one user.
type Edge int8

const (
	EdgeNone    Edge = iota
	EdgeOnline       // 0 -> 1
	EdgeOffline      // 1 -> 0
)

func (e Edge) String() string {
	switch e {
	case EdgeOnline:
		return "online"
	case EdgeOffline:
		return "offline"
	default:
		return "none"
	}
}

// Transition is computed inside the registry lock, so every 0->1 and 1->0
// edge of a user is reported by exactly one Register or Unregister call.
type Transition struct {
	User  domain.UserID
	Conn  core.ConnID
	Edge  Edge
	Count int
	At    time.Time
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*core.Session
	users    map[domain.UserID]map[core.ConnID]*core.Session

	Metrics *observability.Metrics
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnID]*core.Session),
		users:    make(map[domain.UserID]map[core.ConnID]*core.Session),
		now:      time.Now,
	}
}

func (r *Registry) Register(sess *core.Session) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.ID]; ok {
		log.Warn().Str("module", "app.registry").Str("conn", string(sess.ID)).Str("user", string(sess.User)).Msg("duplicate connection rejected")
		return Transition{}, fmt.Errorf("register %s: %w", sess.ID, core.ErrDuplicateConnection)
	}
	set := r.users[sess.User]
	if set == nil {
		set = make(map[core.ConnID]*core.Session)
		r.users[sess.User] = set
	}
	set[sess.ID] = sess
	r.sessions[sess.ID] = sess
	r.Metrics.ConnOpened()

	t := Transition{User: sess.User, Conn: sess.ID, Count: len(set), At: r.now()}
	if t.Count == 1 {
		t.Edge = EdgeOnline
	}
	log.Info().Str("module", "app.registry").Str("conn", string(sess.ID)).Str("user", string(sess.User)).Int("count", t.Count).Msg("registered connection")
	return t, nil
}

// Unregister removes a connection. Unknown ids are a no-op: transport
// teardown and explicit cleanup may both get here.
func (r *Registry) Unregister(id core.ConnID) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return Transition{}, false
	}
	delete(r.sessions, id)
	set := r.users[sess.User]
	delete(set, id)
	r.Metrics.ConnClosed()

	t := Transition{User: sess.User, Conn: id, Count: len(set), At: r.now()}
	if t.Count == 0 {
		delete(r.users, sess.User)
		t.Edge = EdgeOffline
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(sess.User)).Int("count", t.Count).Msg("unregistered connection")
	return t, true
}

// ConnectionsFor returns a snapshot of the user's live sessions, oldest first.
func (r *Registry) ConnectionsFor(user domain.UserID) []*core.Session {
	r.mu.RLock()
	set := r.users[user]
	out := make([]*core.Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

func (r *Registry) IsOnline(user domain.UserID) bool {
	return r.Count(user) > 0
}

func (r *Registry) Count(user domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[user])
}

func (r *Registry) Get(id core.ConnID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) OnlineUsers() []domain.UserID {
	r.mu.RLock()
	out := make([]domain.UserID, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every transport; the adapters unregister as their read loops exit.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		if s.Signal != nil {
			s.Signal.Close()
		}
	}
	log.Info().Str("module", "app.registry").Int("closed", len(all)).Msg("closed all connections")
}
