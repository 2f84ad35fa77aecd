package core

import (
	"context"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Authenticator resolves a bearer credential to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.UserID, error)
}

// MessageStore is the durable home of messages. The core only touches
// status, receipt and timestamp fields once a message is inserted.
//
// Every method that advances status returns only the messages whose
// message-level status changed in that call; re-applying a receipt that was
// already recorded returns nothing.
type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	// Deliver records that recipient received the given messages.
	Deliver(ctx context.Context, recipient domain.UserID, ids []domain.MessageID, at time.Time) ([]*domain.Message, error)
	// Undelivered lists messages owed to recipient that it has not received yet.
	Undelivered(ctx context.Context, recipient domain.UserID, limit int) ([]*domain.Message, error)
	// MarkConversationRead advances every message reader is owed in conv in one batch.
	MarkConversationRead(ctx context.Context, conv domain.ConversationID, reader domain.UserID, at time.Time) ([]*domain.Message, error)
}

// SocialGraph answers who cares about whom.
type SocialGraph interface {
	PresenceSubscribers(ctx context.Context, user domain.UserID) ([]domain.UserID, error)
	ConversationMembers(ctx context.Context, conv domain.ConversationID) ([]domain.UserID, error)
	DeliveryPolicy(ctx context.Context, conv domain.ConversationID) (domain.DeliveryPolicy, error)
}

// LastSeenStore keeps the last time a user went offline.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, user domain.UserID, at time.Time) error
	LastSeen(ctx context.Context, user domain.UserID) (time.Time, bool, error)
}
