package core

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
)

type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// Session binds one live transport connection to the user that opened it.
// The registry owns sessions; adapters own the SignalConnection inside.
type Session struct {
	ID     ConnID
	User   domain.UserID
	Since  time.Time
	Signal SignalConnection
}

func NewSession(user domain.UserID, sig SignalConnection) *Session {
	return &Session{
		ID:     NewConnID(),
		User:   user,
		Since:  time.Now(),
		Signal: sig,
	}
}
