package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// inbound is the union of every client frame.
type inbound struct {
	Type           string                `json:"type"`
	To             domain.UserID         `json:"to,omitempty"`
	CallID         domain.CallID         `json:"callId,omitempty"`
	ConversationID domain.ConversationID `json:"conversationId,omitempty"`
	MessageIDs     []domain.MessageID    `json:"messageIds,omitempty"`
	Body           json.RawMessage       `json:"body,omitempty"`
	Payload        json.RawMessage       `json:"payload,omitempty"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess *core.Session, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(sess.ID)).Str("user", string(sess.User)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnect(context.WithoutCancel(ctx), sess.ID)
	}()

	pongWait := ctl.Opts.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(sess.ID)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, sess, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess *core.Session, c *WsSignalConn, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(sess.ID)).Msg("bad json")
		ctl.sendError(c, "", errBadPayload)
		return
	}

	switch in.Type {
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(sess, c)
	case "message:send":
		ctl.handleSend(ctx, sess, c, in)
	case "message:delivered":
		ctl.handleDelivered(ctx, sess, c, in)
	case "message:read":
		ctl.handleRead(ctx, sess, c, in)
	default:
		ctl.handleEnvelope(ctx, sess, c, in)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, typ string, v any) {
	f, err := core.Encode(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}
