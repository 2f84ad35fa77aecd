package domain

import (
	"encoding/json"
	"slices"
	"time"
)

type (
	MessageID      string
	ConversationID string
)

// Status is a message delivery state. The zero value is not a valid status.
type Status int

const (
	StatusSent Status = iota + 1
	StatusDelivered
	StatusRead
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

func (s Status) Valid() bool { return s >= StatusSent && s <= StatusRead }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "sent":
		*s = StatusSent
	case "delivered":
		*s = StatusDelivered
	case "read":
		*s = StatusRead
	default:
		return ErrInvalidStatus
	}
	return nil
}

// Message carries only the fields the realtime core reads or writes.
// Body is opaque and stored verbatim.
type Message struct {
	ID             MessageID       `json:"id" bson:"_id"`
	SenderID       UserID          `json:"senderId" bson:"sender_id"`
	ConversationID ConversationID  `json:"conversationId" bson:"conversation_id"`
	Recipients     []UserID        `json:"recipients" bson:"recipients"`
	DeliveredTo    []UserID        `json:"deliveredTo,omitempty" bson:"delivered_to"`
	ReadBy         []UserID        `json:"readBy,omitempty" bson:"read_by"`
	Quorum         int             `json:"-" bson:"quorum"`
	Status         Status          `json:"status" bson:"status"`
	Body           json.RawMessage `json:"body,omitempty" bson:"body"`
	SentAt         time.Time       `json:"sentAt" bson:"sent_at"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty" bson:"delivered_at,omitempty"`
	ReadAt         *time.Time      `json:"readAt,omitempty" bson:"read_at,omitempty"`
}

func (m *Message) IsRecipient(u UserID) bool { return slices.Contains(m.Recipients, u) }

// RecordDelivery notes that recipient u received the message and advances the
// message-level status once Quorum recipients have it. It reports whether the
// message-level status changed.
func (m *Message) RecordDelivery(u UserID, at time.Time) bool {
	if !m.IsRecipient(u) {
		return false
	}
	if !slices.Contains(m.DeliveredTo, u) {
		m.DeliveredTo = append(m.DeliveredTo, u)
	}
	return m.settle(at)
}

// RecordRead notes that recipient u read the message. Read implies delivered.
func (m *Message) RecordRead(u UserID, at time.Time) bool {
	if !m.IsRecipient(u) {
		return false
	}
	if !slices.Contains(m.DeliveredTo, u) {
		m.DeliveredTo = append(m.DeliveredTo, u)
	}
	if !slices.Contains(m.ReadBy, u) {
		m.ReadBy = append(m.ReadBy, u)
	}
	return m.settle(at)
}

// settle recomputes the status from the receipt sets. It never moves backwards.
func (m *Message) settle(at time.Time) bool {
	q := m.EffectiveQuorum()
	target := StatusSent
	switch {
	case len(m.ReadBy) >= q:
		target = StatusRead
	case len(m.DeliveredTo) >= q:
		target = StatusDelivered
	}
	if target <= m.Status {
		return false
	}
	if m.DeliveredAt == nil {
		t := at
		m.DeliveredAt = &t
	}
	if target == StatusRead {
		t := at
		m.ReadAt = &t
	}
	m.Status = target
	return true
}

// EffectiveQuorum clamps Quorum to [1, len(Recipients)].
func (m *Message) EffectiveQuorum() int {
	if m.Quorum <= 0 || m.Quorum > len(m.Recipients) {
		return max(len(m.Recipients), 1)
	}
	return m.Quorum
}

// DeliveryPolicy decides how many recipients of a group message must receive
// (or read) it before the message-level status advances.
type DeliveryPolicy string

const (
	DeliverFirst DeliveryPolicy = "first"
	DeliverAll   DeliveryPolicy = "all"
)

func (p DeliveryPolicy) Quorum(recipients int) int {
	if recipients <= 0 {
		return 1
	}
	if p == DeliverFirst {
		return 1
	}
	return recipients
}

// StatusChange is what the sender is told about one message.
type StatusChange struct {
	MessageID      MessageID      `json:"messageId"`
	ConversationID ConversationID `json:"conversationId"`
	SenderID       UserID         `json:"-"`
	Status         Status         `json:"status"`
	At             time.Time      `json:"at"`
}

func ChangeOf(m *Message) StatusChange {
	at := m.SentAt
	switch {
	case m.Status == StatusRead && m.ReadAt != nil:
		at = *m.ReadAt
	case m.Status == StatusDelivered && m.DeliveredAt != nil:
		at = *m.DeliveredAt
	}
	return StatusChange{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Status:         m.Status,
		At:             at,
	}
}
