package signal

import (
	"context"

	"github.com/dkeye/Parley/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSend(ctx context.Context, sess *core.Session, conn *WsSignalConn, in inbound) {
	if in.ConversationID == "" || len(in.Body) == 0 {
		ctl.sendError(conn, in.Type, errBadPayload)
		return
	}
	msg, err := ctl.Orch.SendMessage(ctx, sess, in.ConversationID, in.Body)
	if err != nil {
		ctl.sendError(conn, in.Type, err)
		return
	}
	log.Debug().Str("module", "signal").Str("conn", string(sess.ID)).Str("message", string(msg.ID)).Msg("message accepted")
}

func (ctl *SignalWSController) handleDelivered(ctx context.Context, sess *core.Session, conn *WsSignalConn, in inbound) {
	if len(in.MessageIDs) == 0 {
		ctl.sendError(conn, in.Type, errBadPayload)
		return
	}
	if err := ctl.Orch.AckDelivered(ctx, sess, in.MessageIDs); err != nil {
		ctl.sendError(conn, in.Type, err)
	}
}

func (ctl *SignalWSController) handleRead(ctx context.Context, sess *core.Session, conn *WsSignalConn, in inbound) {
	if in.ConversationID == "" {
		ctl.sendError(conn, in.Type, errBadPayload)
		return
	}
	if err := ctl.Orch.MarkRead(ctx, sess, in.ConversationID); err != nil {
		ctl.sendError(conn, in.Type, err)
	}
}
