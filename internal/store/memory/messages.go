// Package memory provides in-process implementations of the core stores.
// They back the "memory" storage mode and the tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Messages is a MessageStore; every method runs under one mutex, so a batch
// update is atomic with respect to concurrent receipts.
type Messages struct {
	mu    sync.Mutex
	byID  map[domain.MessageID]*domain.Message
	order []domain.MessageID
}

func NewMessages() *Messages {
	return &Messages{byID: make(map[domain.MessageID]*domain.Message)}
}

func (s *Messages) Insert(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; ok {
		return fmt.Errorf("insert %s: duplicate id", m.ID)
	}
	s.byID[m.ID] = clone(m)
	s.order = append(s.order, m.ID)
	return nil
}

func (s *Messages) Get(_ context.Context, id domain.MessageID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, core.ErrMessageNotFound
	}
	return clone(m), nil
}

func (s *Messages) Deliver(_ context.Context, recipient domain.UserID, ids []domain.MessageID, at time.Time) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []*domain.Message
	for _, id := range ids {
		m, ok := s.byID[id]
		if !ok {
			continue
		}
		if m.RecordDelivery(recipient, at) {
			changed = append(changed, clone(m))
		}
	}
	return changed, nil
}

func (s *Messages) Undelivered(_ context.Context, recipient domain.UserID, limit int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, id := range s.order {
		m := s.byID[id]
		if !m.IsRecipient(recipient) || slices.Contains(m.DeliveredTo, recipient) {
			continue
		}
		out = append(out, clone(m))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Messages) MarkConversationRead(_ context.Context, conv domain.ConversationID, reader domain.UserID, at time.Time) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []*domain.Message
	for _, id := range s.order {
		m := s.byID[id]
		if m.ConversationID != conv || slices.Contains(m.ReadBy, reader) {
			continue
		}
		if m.RecordRead(reader, at) {
			changed = append(changed, clone(m))
		}
	}
	return changed, nil
}

func clone(m *domain.Message) *domain.Message {
	c := *m
	c.Recipients = slices.Clone(m.Recipients)
	c.DeliveredTo = slices.Clone(m.DeliveredTo)
	c.ReadBy = slices.Clone(m.ReadBy)
	c.Body = slices.Clone(m.Body)
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}
