package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/observability"
	"github.com/rs/zerolog/log"
)

// Presence turns registry edges into userOnline/userOffline events. Delivery
// is best-effort: a subscriber without live connections simply misses it.
type Presence struct {
	Registry *Registry
	Notify   *Notifier
	Graph    core.SocialGraph
	LastSeen core.LastSeenStore
	Metrics  *observability.Metrics
	Timeout  time.Duration

	locks userLocks
}

type PresenceSnapshot struct {
	UserID      domain.UserID `json:"userId"`
	Online      bool          `json:"online"`
	Connections int           `json:"connections"`
	LastSeen    *time.Time    `json:"lastSeen,omitempty"`
}

// Connect registers sess and announces the user's 0->1 edge. Registry
// change and announcement happen under the user's lock, so subscribers see
// a user's edges in the order the registry produced them.
func (p *Presence) Connect(ctx context.Context, sess *core.Session) (Transition, error) {
	unlock := p.locks.lock(sess.User)
	defer unlock()
	t, err := p.Registry.Register(sess)
	if err != nil {
		return t, err
	}
	p.announce(ctx, t)
	return t, nil
}

// Disconnect unregisters id and announces the user's 1->0 edge. Last-seen
// is written after the event is out and the user's lock is released.
func (p *Presence) Disconnect(ctx context.Context, id core.ConnID) (Transition, bool) {
	sess, ok := p.Registry.Get(id)
	if !ok {
		return Transition{}, false
	}
	unlock := p.locks.lock(sess.User)
	t, ok := p.Registry.Unregister(id)
	if ok {
		p.announce(ctx, t)
	}
	unlock()
	if ok && t.Edge == EdgeOffline {
		p.recordLastSeen(ctx, t.User, t.At)
	}
	return t, ok
}

func (p *Presence) announce(ctx context.Context, t Transition) {
	var (
		typ     string
		payload any
	)
	switch t.Edge {
	case EdgeOnline:
		typ, payload = core.EventUserOnline, core.UserOnline{UserID: t.User}
	case EdgeOffline:
		typ, payload = core.EventUserOffline, core.UserOffline{UserID: t.User, LastSeen: t.At}
	default:
		return
	}
	p.Metrics.PresenceEdge(t.Edge.String())

	subs, err := p.subscribers(ctx, t.User)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(t.User)).Msg("resolve presence subscribers")
		return
	}
	f, err := core.Encode(typ, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode presence event")
		return
	}
	reached := 0
	for _, sub := range subs {
		if sub == t.User {
			continue
		}
		reached += p.Notify.ToUser(sub, f).SendTo
	}
	log.Debug().Str("module", "app.presence").Str("user", string(t.User)).Str("edge", t.Edge.String()).Int("subscribers", len(subs)).Int("reached", reached).Msg("presence fan-out")
}

func (p *Presence) Snapshot(ctx context.Context, user domain.UserID) PresenceSnapshot {
	snap := PresenceSnapshot{UserID: user, Connections: p.Registry.Count(user)}
	snap.Online = snap.Connections > 0
	if snap.Online || p.LastSeen == nil {
		return snap
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	at, ok, err := p.LastSeen.LastSeen(ctx, user)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(user)).Msg("read last seen")
		return snap
	}
	if ok {
		snap.LastSeen = &at
	}
	return snap
}

func (p *Presence) subscribers(ctx context.Context, user domain.UserID) ([]domain.UserID, error) {
	if p.Graph == nil {
		return nil, nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.Graph.PresenceSubscribers(ctx, user)
}

func (p *Presence) recordLastSeen(ctx context.Context, user domain.UserID, at time.Time) {
	if p.LastSeen == nil {
		return
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := p.LastSeen.SetLastSeen(ctx, user, at); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(user)).Msg("write last seen")
	}
}

func (p *Presence) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// userLocks hands out one mutex per user and forgets it once nobody holds
// or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[domain.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(u domain.UserID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[domain.UserID]*userLock)
	}
	ul := l.locks[u]
	if ul == nil {
		ul = &userLock{}
		l.locks[u] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, u)
		}
		l.mu.Unlock()
	}
}
