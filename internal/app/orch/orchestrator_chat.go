package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// SendMessage accepts a chat message. The sender's connections get
// message:accepted with status sent before any later status of it.
func (o *Orchestrator) SendMessage(ctx context.Context, origin *core.Session, conv domain.ConversationID, body json.RawMessage) (*domain.Message, error) {
	return o.Status.Accept(ctx, app.SendRequest{
		Sender:         origin.User,
		ConversationID: conv,
		Body:           body,
	})
}

func (o *Orchestrator) AckDelivered(_ context.Context, origin *core.Session, ids []domain.MessageID) error {
	return o.Status.Deliver(origin.User, ids)
}

func (o *Orchestrator) MarkRead(ctx context.Context, origin *core.Session, conv domain.ConversationID) error {
	return o.Status.MarkRead(ctx, conv, origin.User)
}
