package orch

import (
	"context"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/rs/zerolog/log"
)

// OnConnect admits an authenticated session. On the user's first connection
// it announces presence and flushes the undelivered backlog.
func (o *Orchestrator) OnConnect(ctx context.Context, sess *core.Session) error {
	t, err := o.Presence.Connect(ctx, sess)
	if err != nil {
		return err
	}
	if t.Edge == app.EdgeOnline {
		if err := o.Status.FlushBacklog(sess.User); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("user", string(sess.User)).Msg("queue backlog flush")
		}
	}
	return nil
}

// OnDisconnect is safe to call more than once for the same connection.
func (o *Orchestrator) OnDisconnect(ctx context.Context, id core.ConnID) {
	t, ok := o.Presence.Disconnect(ctx, id)
	if !ok {
		return
	}
	if t.Edge != app.EdgeOffline {
		return
	}
	o.Limiter.Forget(t.User)
	for _, c := range o.Calls.DropUser(t.User) {
		o.notifyCallParty(c.Peer(t.User), c, "call:ended", "disconnected")
	}
}
