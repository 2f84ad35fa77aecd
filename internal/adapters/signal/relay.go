package signal

import (
	"context"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleEnvelope forwards call, ICE and typing events. SDP and candidates
// stay opaque in Payload.
func (ctl *SignalWSController) handleEnvelope(ctx context.Context, sess *core.Session, conn *WsSignalConn, in inbound) {
	kind, err := domain.ParseKind(in.Type)
	if err != nil {
		log.Warn().Str("module", "signal").Str("type", in.Type).Msg("unknown signal")
		ctl.sendError(conn, in.Type, err)
		return
	}
	res, err := ctl.Orch.OnEnvelope(ctx, sess, domain.Envelope{
		Target:  in.To,
		Kind:    kind,
		CallID:  in.CallID,
		Payload: in.Payload,
	})
	if err != nil {
		ctl.sendError(conn, in.Type, err)
		return
	}
	log.Debug().Str("module", "signal").Str("kind", in.Type).Str("to", string(in.To)).Int("delivered", res.Delivered).Bool("offline", res.Offline).Msg("relayed")
}
