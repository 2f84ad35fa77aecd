package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingCallID = errors.New("missing call id")
	ErrRateLimited   = errors.New("too many calls")
	ErrSelfTarget    = errors.New("cannot signal yourself")
)

// OnEnvelope routes a client envelope. Call kinds go through the call
// tracker first, so a cancelled or expired call is never relayed again.
func (o *Orchestrator) OnEnvelope(_ context.Context, origin *core.Session, env domain.Envelope) (app.RelayResult, error) {
	env.Sender = origin.User
	if env.Kind.Outbound() == "" {
		return app.RelayResult{}, domain.ErrUnknownKind
	}
	if env.Kind.IsCall() && env.CallID == "" {
		return app.RelayResult{}, ErrMissingCallID
	}

	switch env.Kind {
	case domain.KindCallInitiate:
		return o.initiate(origin, env)
	case domain.KindCallAnswer:
		c, err := o.Calls.Answer(env.CallID, env.Sender)
		if err != nil {
			return app.RelayResult{}, err
		}
		env.Target = c.Caller
	case domain.KindCallReject:
		if err := o.resolve(&env, app.OutcomeRejected); err != nil {
			return app.RelayResult{}, err
		}
	case domain.KindCallEnd:
		if err := o.resolve(&env, app.OutcomeEnded); err != nil {
			return app.RelayResult{}, err
		}
	case domain.KindCallCancel:
		if err := o.resolve(&env, app.OutcomeCancelled); err != nil {
			return app.RelayResult{}, err
		}
	case domain.KindICECandidate:
		if c, ok := o.Calls.Lookup(env.CallID); ok {
			if env.Sender != c.Caller && env.Sender != c.Callee {
				return app.RelayResult{}, app.ErrNotInCall
			}
			env.Target = c.Peer(env.Sender)
		}
	case domain.KindTypingStart, domain.KindTypingStop, domain.KindMessageDeleted:
	}
	if env.Target == env.Sender {
		return app.RelayResult{}, ErrSelfTarget
	}
	return o.Relay.Relay(origin, env)
}

func (o *Orchestrator) initiate(origin *core.Session, env domain.Envelope) (app.RelayResult, error) {
	if env.Target == env.Sender {
		return app.RelayResult{}, ErrSelfTarget
	}
	if !o.Registry.IsOnline(env.Target) {
		return o.Relay.Relay(origin, env)
	}
	if !o.Limiter.Allow(env.Sender) {
		return app.RelayResult{}, ErrRateLimited
	}
	if err := o.Calls.Ring(env.CallID, env.Sender, env.Target); err != nil {
		return app.RelayResult{}, err
	}
	res, err := o.Relay.Relay(origin, env)
	if err != nil || res.Offline {
		// callee left between the check and the relay
		_, _ = o.Calls.Resolve(env.CallID, env.Sender, app.OutcomeCancelled)
	}
	return res, err
}

func (o *Orchestrator) resolve(env *domain.Envelope, outcome app.Outcome) error {
	c, err := o.Calls.Resolve(env.CallID, env.Sender, outcome)
	if err != nil {
		return err
	}
	env.Target = c.Peer(env.Sender)
	return nil
}

func (o *Orchestrator) onCallTimeout(c app.CallInfo) {
	o.notifyCallParty(c.Caller, c, "call:cancelled", string(app.OutcomeTimeout))
	o.notifyCallParty(c.Callee, c, "call:cancelled", string(app.OutcomeTimeout))
}

func (o *Orchestrator) notifyCallParty(to domain.UserID, c app.CallInfo, typ, reason string) {
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	f, err := core.EncodeFrame(core.OutFrame{
		Type:    typ,
		From:    c.Peer(to),
		CallID:  c.ID,
		Payload: payload,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("call", string(c.ID)).Msg("encode call notice")
		return
	}
	o.Notify.ToUser(to, f)
}
