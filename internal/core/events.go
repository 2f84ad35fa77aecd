package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Outbound event names.
const (
	EventUserOnline          = "userOnline"
	EventUserOffline         = "userOffline"
	EventMessageStatusUpdate = "messageStatusUpdate"
	EventMessagesMarkedRead  = "messagesMarkedRead"
	EventMessageNew          = "message:new"
	EventMessageAccepted     = "message:accepted"
	EventTargetOffline       = "targetOffline"
	EventError               = "error"
	EventPong                = "pong"
	EventWhoAmI              = "whoami"
)

// OutFrame is the wire shape of every server->client event.
type OutFrame struct {
	Type    string          `json:"type"`
	From    domain.UserID   `json:"from,omitempty"`
	CallID  domain.CallID   `json:"callId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds a frame for event typ with v as payload.
func Encode(typ string, v any) (Frame, error) {
	f := OutFrame{Type: typ}
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		f.Payload = b
	}
	return EncodeFrame(f)
}

func EncodeFrame(f OutFrame) (Frame, error) {
	return json.Marshal(f)
}

type UserOnline struct {
	UserID domain.UserID `json:"userId"`
}

type UserOffline struct {
	UserID   domain.UserID `json:"userId"`
	LastSeen time.Time     `json:"lastSeen"`
}

type MessagesMarkedRead struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	ReaderID       domain.UserID         `json:"readerId"`
}

type TargetOffline struct {
	TargetID domain.UserID `json:"targetId"`
	Kind     string        `json:"kind,omitempty"`
	CallID   domain.CallID `json:"callId,omitempty"`
}

// ErrorPayload is sent to the one connection whose request failed. Ref
// echoes the request type.
type ErrorPayload struct {
	Error string `json:"error"`
	Ref   string `json:"ref,omitempty"`
}

type WhoAmI struct {
	UserID      domain.UserID `json:"userId"`
	ConnID      ConnID        `json:"connId"`
	Connections int           `json:"connections"`
}
