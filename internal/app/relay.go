package app

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/observability"
	"github.com/rs/zerolog/log"
)

// RelayResult reports one relay call. Offline is a normal outcome, not an error.
type RelayResult struct {
	Delivered int
	Dropped   int
	Offline   bool
}

// Relay forwards envelopes verbatim to every live connection of the target.
// It never retries and never buffers.
type Relay struct {
	Registry *Registry
	Notify   *Notifier
	Metrics  *observability.Metrics
}

// Relay sends env to the target. When the target is offline and origin is
// set, origin gets a targetOffline notice.
func (r *Relay) Relay(origin *core.Session, env domain.Envelope) (RelayResult, error) {
	if err := env.Validate(); err != nil {
		return RelayResult{}, err
	}
	kind := env.Kind.String()

	targets := r.Registry.ConnectionsFor(env.Target)
	if len(targets) == 0 {
		r.Metrics.Relayed(kind, "offline", 1)
		if origin != nil {
			r.notifyOffline(origin, env)
		}
		return RelayResult{Offline: true}, nil
	}

	f, err := encodeEnvelope(env)
	if err != nil {
		return RelayResult{}, err
	}
	pub := r.Notify.ToSessions(targets, f)
	r.Metrics.Relayed(kind, "delivered", pub.SendTo)
	r.Metrics.Relayed(kind, "dropped", len(pub.Dropped))
	log.Debug().Str("module", "app.relay").Str("kind", kind).Str("from", string(env.Sender)).Str("to", string(env.Target)).Int("sent_to", pub.SendTo).Int("dropped", len(pub.Dropped)).Msg("relay result")
	return RelayResult{Delivered: pub.SendTo, Dropped: len(pub.Dropped)}, nil
}

func (r *Relay) notifyOffline(origin *core.Session, env domain.Envelope) {
	f, err := core.Encode(core.EventTargetOffline, core.TargetOffline{
		TargetID: env.Target,
		Kind:     env.Kind.String(),
		CallID:   env.CallID,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode targetOffline")
		return
	}
	_ = r.Notify.ToSession(origin, f)
}

func encodeEnvelope(env domain.Envelope) (core.Frame, error) {
	return core.EncodeFrame(core.OutFrame{
		Type:    env.Kind.Outbound(),
		From:    env.Sender,
		CallID:  env.CallID,
		Payload: env.Payload,
	})
}
