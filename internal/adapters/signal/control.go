package signal

import (
	"errors"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

var errBadPayload = errors.New("bad payload")

var errorCodes = []struct {
	err  error
	code string
}{
	{errBadPayload, "bad_payload"},
	{domain.ErrUnknownKind, "unknown_kind"},
	{domain.ErrNoTarget, "no_target"},
	{orch.ErrMissingCallID, "missing_call_id"},
	{orch.ErrRateLimited, "rate_limited"},
	{orch.ErrSelfTarget, "self_target"},
	{app.ErrCallExists, "call_exists"},
	{app.ErrCallNotFound, "call_not_found"},
	{app.ErrNotInCall, "not_in_call"},
	{core.ErrNotConversationMember, "not_member"},
	{core.ErrConversationNotFound, "conversation_not_found"},
	{core.ErrNoRecipients, "no_recipients"},
	{core.ErrPersistenceWriteFailed, "persistence_failed"},
}

func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.EventPong, nil)
}

// sendError reports a failed request to the connection that made it only.
func (ctl *SignalWSController) sendError(conn *WsSignalConn, ref string, err error) {
	code := errorCode(err)
	if code == "internal" {
		log.Error().Err(err).Str("module", "signal").Str("ref", ref).Msg("request failed")
	}
	ctl.sendJSON(conn, core.EventError, core.ErrorPayload{Error: code, Ref: ref})
}
