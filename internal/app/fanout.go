package app

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure of one fan-out.
type PublishResult struct {
	SendTo  int
	Dropped []*core.Session
}

// Notifier pushes frames to the live sessions of a user. It keeps no state
// of its own; targets are looked up in the registry on every call.
type Notifier struct {
	Registry *Registry
	Policy   Policy
}

func (n *Notifier) ToUser(user domain.UserID, f core.Frame) PublishResult {
	return n.ToSessions(n.Registry.ConnectionsFor(user), f)
}

func (n *Notifier) ToSessions(sessions []*core.Session, f core.Frame) PublishResult {
	res := PublishResult{}
	for _, s := range sessions {
		if err := s.Signal.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, s)
			continue
		}
		res.SendTo++
	}
	n.applyPolicy(res.Dropped)
	return res
}

func (n *Notifier) ToSession(s *core.Session, f core.Frame) error {
	err := s.Signal.TrySend(f)
	if err != nil {
		n.applyPolicy([]*core.Session{s})
	}
	return err
}

func (n *Notifier) Event(user domain.UserID, typ string, v any) PublishResult {
	f, err := core.Encode(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Str("type", typ).Msg("encode event")
		return PublishResult{}
	}
	return n.ToUser(user, f)
}

func (n *Notifier) applyPolicy(dropped []*core.Session) {
	if n.Policy == nil {
		return
	}
	for _, s := range dropped {
		switch n.Policy.OnBackPressure(s) {
		case KickConnection:
			log.Warn().Str("module", "app.fanout").Str("conn", string(s.ID)).Str("user", string(s.User)).Msg("kicking slow connection")
			s.Signal.Close()
		case DropFrame, NoAction:
		}
	}
}
