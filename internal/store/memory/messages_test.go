package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func seed(t *testing.T, s *Messages, id domain.MessageID, conv domain.ConversationID, recipients ...domain.UserID) {
	t.Helper()
	err := s.Insert(context.Background(), &domain.Message{
		ID:             id,
		SenderID:       "alice",
		ConversationID: conv,
		Recipients:     recipients,
		Status:         domain.StatusSent,
		SentAt:         time.Now(),
	})
	if err != nil {
		t.Fatalf("Insert(%s) error = %v", id, err)
	}
}

func TestMessages_DeliverReportsOnlyChanges(t *testing.T) {
	s := NewMessages()
	ctx := context.Background()
	seed(t, s, "m1", "dm:alice:bob", "bob")
	seed(t, s, "m2", "dm:alice:bob", "bob")

	changed, err := s.Deliver(ctx, "bob", []domain.MessageID{"m1", "m2", "missing"}, time.Now())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(changed) != 2 {
		t.Errorf("Deliver() changed = %d, want 2", len(changed))
	}
	changed, _ = s.Deliver(ctx, "bob", []domain.MessageID{"m1"}, time.Now())
	if len(changed) != 0 {
		t.Errorf("duplicate Deliver() changed = %d, want 0", len(changed))
	}
}

func TestMessages_UndeliveredOrderAndLimit(t *testing.T) {
	s := NewMessages()
	ctx := context.Background()
	seed(t, s, "m1", "dm:alice:bob", "bob")
	seed(t, s, "m2", "dm:alice:bob", "bob")
	seed(t, s, "m3", "dm:alice:carol", "carol")
	seed(t, s, "m4", "dm:alice:bob", "bob")
	_, _ = s.Deliver(ctx, "bob", []domain.MessageID{"m2"}, time.Now())

	got, _ := s.Undelivered(ctx, "bob", 0)
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m4" {
		t.Errorf("Undelivered(bob) = %v, want m1, m4", ids(got))
	}
	got, _ = s.Undelivered(ctx, "bob", 1)
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("Undelivered(bob, 1) = %v, want m1", ids(got))
	}
}

func TestMessages_MarkConversationRead(t *testing.T) {
	s := NewMessages()
	ctx := context.Background()
	seed(t, s, "m1", "dm:alice:bob", "bob")
	seed(t, s, "m2", "dm:alice:bob", "bob")
	seed(t, s, "m3", "dm:alice:carol", "carol")

	changed, err := s.MarkConversationRead(ctx, "dm:alice:bob", "bob", time.Now())
	if err != nil {
		t.Fatalf("MarkConversationRead() error = %v", err)
	}
	if len(changed) != 2 {
		t.Errorf("changed = %d, want 2", len(changed))
	}
	for _, m := range changed {
		if m.Status != domain.StatusRead {
			t.Errorf("%s status = %v, want read", m.ID, m.Status)
		}
	}
	m3, _ := s.Get(ctx, "m3")
	if m3.Status != domain.StatusSent {
		t.Errorf("other conversation status = %v, want sent", m3.Status)
	}
	changed, _ = s.MarkConversationRead(ctx, "dm:alice:bob", "bob", time.Now())
	if len(changed) != 0 {
		t.Errorf("second MarkConversationRead changed = %d, want 0", len(changed))
	}
}

func TestMessages_GetReturnsCopy(t *testing.T) {
	s := NewMessages()
	ctx := context.Background()
	seed(t, s, "m1", "dm:alice:bob", "bob")

	m, _ := s.Get(ctx, "m1")
	m.Status = domain.StatusRead
	m.Recipients[0] = "mallory"

	again, _ := s.Get(ctx, "m1")
	if again.Status != domain.StatusSent || again.Recipients[0] != "bob" {
		t.Errorf("store was mutated through Get: %+v", again)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrMessageNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrMessageNotFound", err)
	}
	if err := s.Insert(ctx, &domain.Message{ID: "m1"}); err == nil {
		t.Error("Insert(duplicate) = nil, want error")
	}
}

func ids(ms []*domain.Message) []domain.MessageID {
	out := make([]domain.MessageID, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}
