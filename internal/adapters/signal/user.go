package signal

import (
	"github.com/dkeye/Parley/internal/core"
)

func (ctl *SignalWSController) handleWhoAmI(sess *core.Session, conn *WsSignalConn) {
	ctl.sendJSON(conn, core.EventWhoAmI, core.WhoAmI{
		UserID:      sess.User,
		ConnID:      sess.ID,
		Connections: ctl.Orch.Registry.Count(sess.User),
	})
}
