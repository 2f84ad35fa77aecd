package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
)

// liveClient connects to the server named by PARLEY_TEST_MONGO_URI and
// works in a throwaway database.
func liveClient(t *testing.T) *Client {
	t.Helper()
	uri := os.Getenv("PARLEY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PARLEY_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := Connect(ctx, Config{URI: uri, Database: "parley_test_" + uuid.NewString()[:8], MaxRetry: 1})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.db.Drop(ctx)
		_ = c.Close(ctx)
	})
	if err := c.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	return c
}

func insertGroupMessage(t *testing.T, s *Messages, id domain.MessageID, quorum int) {
	t.Helper()
	err := s.Insert(context.Background(), &domain.Message{
		ID:             id,
		SenderID:       "alice",
		ConversationID: "g1",
		Recipients:     []domain.UserID{"bob", "carol"},
		Quorum:         quorum,
		Status:         domain.StatusSent,
		SentAt:         time.Now(),
	})
	if err != nil {
		t.Fatalf("Insert(%s) error = %v", id, err)
	}
}

func TestMessages_LiveQuorumAll(t *testing.T) {
	s := liveClient(t).Messages()
	ctx := context.Background()
	insertGroupMessage(t, s, "m1", 2)

	changed, err := s.Deliver(ctx, "bob", []domain.MessageID{"m1"}, time.Now())
	if err != nil {
		t.Fatalf("Deliver(bob) error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("Deliver(bob) changed = %d, want 0 below quorum", len(changed))
	}

	changed, err = s.Deliver(ctx, "carol", []domain.MessageID{"m1"}, time.Now())
	if err != nil {
		t.Fatalf("Deliver(carol) error = %v", err)
	}
	if len(changed) != 1 || changed[0].Status != domain.StatusDelivered || changed[0].DeliveredAt == nil {
		t.Fatalf("Deliver(carol) changed = %+v, want m1 delivered with deliveredAt", changed)
	}

	changed, err = s.Deliver(ctx, "carol", []domain.MessageID{"m1"}, time.Now())
	if err != nil {
		t.Fatalf("Deliver(carol) again error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("repeated Deliver changed = %d, want 0", len(changed))
	}

	changed, err = s.MarkConversationRead(ctx, "g1", "bob", time.Now())
	if err != nil {
		t.Fatalf("MarkConversationRead(bob) error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("MarkConversationRead(bob) changed = %d, want 0 below quorum", len(changed))
	}

	changed, err = s.MarkConversationRead(ctx, "g1", "carol", time.Now())
	if err != nil {
		t.Fatalf("MarkConversationRead(carol) error = %v", err)
	}
	if len(changed) != 1 || changed[0].Status != domain.StatusRead || changed[0].ReadAt == nil {
		t.Fatalf("MarkConversationRead(carol) changed = %+v, want m1 read with readAt", changed)
	}
}

func TestMessages_LiveStatusNeverRegresses(t *testing.T) {
	s := liveClient(t).Messages()
	ctx := context.Background()
	insertGroupMessage(t, s, "m1", 1)

	// read without a prior delivery receipt implies delivered
	changed, err := s.MarkConversationRead(ctx, "g1", "bob", time.Now())
	if err != nil {
		t.Fatalf("MarkConversationRead() error = %v", err)
	}
	if len(changed) != 1 || changed[0].Status != domain.StatusRead {
		t.Fatalf("MarkConversationRead() changed = %+v, want m1 read", changed)
	}
	if changed[0].DeliveredAt == nil {
		t.Error("read message should carry deliveredAt")
	}

	changed, err = s.Deliver(ctx, "carol", []domain.MessageID{"m1"}, time.Now())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("Deliver after read changed = %d, want 0", len(changed))
	}
	m, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Status != domain.StatusRead {
		t.Errorf("status = %v, want read", m.Status)
	}

	pending, err := s.Undelivered(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("Undelivered() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Undelivered(bob) = %d, want 0", len(pending))
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrMessageNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrMessageNotFound", err)
	}
}
