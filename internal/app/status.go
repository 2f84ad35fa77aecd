package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type StatusConfig struct {
	QueueSize    int
	Timeout      time.Duration
	BacklogLimit int
}

func (c *StatusConfig) norm() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.BacklogLimit <= 0 {
		c.BacklogLimit = 500
	}
}

// SendRequest is a chat message as submitted by a client.
type SendRequest struct {
	Sender         domain.UserID
	ConversationID domain.ConversationID
	Body           json.RawMessage
}

// StatusMachine owns the sent -> delivered -> read lifecycle. Store access
// runs on one worker goroutine in FIFO order, so callers on the relay and
// presence paths only enqueue and never wait for the database. Running every
// job on one queue also keeps an insert ahead of any later delivery or read
// of the same message.
type StatusMachine struct {
	Store    core.MessageStore
	Graph    core.SocialGraph
	Registry *Registry
	Notify   *Notifier
	Metrics  *observability.Metrics

	cfg  StatusConfig
	jobs chan statusJob
	now  func() time.Time
}

type statusJob struct {
	op  string
	run func(ctx context.Context) error
}

func NewStatusMachine(cfg StatusConfig) *StatusMachine {
	cfg.norm()
	return &StatusMachine{
		cfg:  cfg,
		jobs: make(chan statusJob, cfg.QueueSize),
		now:  time.Now,
	}
}

// Run processes queued jobs until ctx is done.
func (s *StatusMachine) Run(ctx context.Context) error {
	log.Info().Str("module", "app.status").Int("queue", cap(s.jobs)).Msg("status worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.status").Int("pending", len(s.jobs)).Msg("status worker stopped")
			return nil
		case j := <-s.jobs:
			s.exec(ctx, j)
		}
	}
}

func (s *StatusMachine) exec(ctx context.Context, j statusJob) {
	jctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := j.run(jctx); err != nil {
		s.Metrics.PersistenceFailed(j.op)
		log.Error().Err(err).Str("module", "app.status").Str("op", j.op).Msg("status job failed")
	}
}

func (s *StatusMachine) enqueue(op string, run func(ctx context.Context) error) error {
	select {
	case s.jobs <- statusJob{op: op, run: run}:
		return nil
	default:
		s.Metrics.PersistenceFailed(op)
		log.Error().Str("module", "app.status").Str("op", op).Msg("status queue full")
		return fmt.Errorf("%s: queue full: %w", op, core.ErrPersistenceWriteFailed)
	}
}

// Sync blocks until every job queued before the call has run.
func (s *StatusMachine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.jobs <- statusJob{op: "sync", run: func(context.Context) error { close(done); return nil }}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Accept builds the message in state sent, confirms it to the sender's
// connections and queues its persistence and fan-out. When the queue is full
// the message is still pushed to online recipients from the calling
// goroutine; only the store write is lost and ErrPersistenceWriteFailed is
// returned alongside the message.
func (s *StatusMachine) Accept(ctx context.Context, req SendRequest) (*domain.Message, error) {
	members, err := s.Graph.ConversationMembers(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("resolve members of %s: %w", req.ConversationID, err)
	}
	if !slices.Contains(members, req.Sender) {
		return nil, fmt.Errorf("send to %s: %w", req.ConversationID, core.ErrNotConversationMember)
	}
	recipients := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		if m != req.Sender {
			recipients = append(recipients, m)
		}
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("send to %s: %w", req.ConversationID, core.ErrNoRecipients)
	}
	policy, err := s.Graph.DeliveryPolicy(ctx, req.ConversationID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.status").Str("conversation", string(req.ConversationID)).Msg("delivery policy lookup failed, using all")
		policy = domain.DeliverAll
	}

	msg := &domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		SenderID:       req.Sender,
		ConversationID: req.ConversationID,
		Recipients:     recipients,
		Quorum:         policy.Quorum(len(recipients)),
		Status:         domain.StatusSent,
		Body:           req.Body,
		SentAt:         s.now(),
	}
	s.Metrics.StatusChanged(domain.StatusSent.String())
	// The worker may deliver before this goroutine runs again.
	s.Notify.Event(req.Sender, core.EventMessageAccepted, domain.ChangeOf(msg))

	stored := *msg
	stored.Recipients = slices.Clone(recipients)
	if err := s.enqueue("insert", func(ctx context.Context) error { return s.insertAndPush(ctx, &stored) }); err != nil {
		if _, perr := s.push(&stored); perr != nil {
			log.Error().Err(perr).Str("module", "app.status").Str("message", string(msg.ID)).Msg("push without persistence")
		}
		return msg, err
	}
	return msg, nil
}

func (s *StatusMachine) insertAndPush(ctx context.Context, msg *domain.Message) error {
	var insertErr error
	if err := s.Store.Insert(ctx, msg); err != nil {
		insertErr = fmt.Errorf("insert %s: %w: %w", msg.ID, core.ErrPersistenceWriteFailed, err)
	}
	reached, err := s.push(msg)
	if err != nil {
		return errors.Join(insertErr, err)
	}
	if insertErr != nil {
		return insertErr
	}
	var errs []error
	for _, r := range reached {
		if err := s.deliver(ctx, r, []domain.MessageID{msg.ID}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// push sends message:new to the live connections of every recipient and
// returns the recipients it reached.
func (s *StatusMachine) push(msg *domain.Message) ([]domain.UserID, error) {
	f, err := core.Encode(core.EventMessageNew, msg)
	if err != nil {
		return nil, err
	}
	var reached []domain.UserID
	for _, r := range msg.Recipients {
		if s.Notify.ToUser(r, f).SendTo > 0 {
			reached = append(reached, r)
		}
	}
	return reached, nil
}

// Deliver records an explicit delivery acknowledgement from recipient.
func (s *StatusMachine) Deliver(recipient domain.UserID, ids []domain.MessageID) error {
	if len(ids) == 0 {
		return nil
	}
	ids = slices.Clone(ids)
	return s.enqueue("deliver", func(ctx context.Context) error { return s.deliver(ctx, recipient, ids) })
}

func (s *StatusMachine) deliver(ctx context.Context, recipient domain.UserID, ids []domain.MessageID) error {
	changed, err := s.Store.Deliver(ctx, recipient, ids, s.now())
	if err != nil {
		return fmt.Errorf("deliver to %s: %w: %w", recipient, core.ErrPersistenceWriteFailed, err)
	}
	s.notifySenders(changed)
	return nil
}

// FlushBacklog pushes every message the user has not received yet and
// records the delivery for those that reached a live connection.
func (s *StatusMachine) FlushBacklog(user domain.UserID) error {
	return s.enqueue("backlog", func(ctx context.Context) error { return s.flush(ctx, user) })
}

func (s *StatusMachine) flush(ctx context.Context, user domain.UserID) error {
	pending, err := s.Store.Undelivered(ctx, user, s.cfg.BacklogLimit)
	if err != nil {
		return fmt.Errorf("backlog of %s: %w", user, err)
	}
	if len(pending) == 0 {
		return nil
	}
	ids := make([]domain.MessageID, 0, len(pending))
	for _, m := range pending {
		f, err := core.Encode(core.EventMessageNew, m)
		if err != nil {
			log.Error().Err(err).Str("module", "app.status").Str("message", string(m.ID)).Msg("encode backlog message")
			continue
		}
		if s.Notify.ToUser(user, f).SendTo > 0 {
			ids = append(ids, m.ID)
		}
	}
	log.Info().Str("module", "app.status").Str("user", string(user)).Int("pending", len(pending)).Int("pushed", len(ids)).Msg("backlog flushed")
	if len(ids) == 0 {
		return nil
	}
	return s.deliver(ctx, user, ids)
}

// MarkRead advances every message reader is owed in conv to read in one
// batch, then tells the conversation and the affected senders.
func (s *StatusMachine) MarkRead(ctx context.Context, conv domain.ConversationID, reader domain.UserID) error {
	members, err := s.Graph.ConversationMembers(ctx, conv)
	if err != nil {
		return fmt.Errorf("resolve members of %s: %w", conv, err)
	}
	if !slices.Contains(members, reader) {
		return fmt.Errorf("mark read in %s: %w", conv, core.ErrNotConversationMember)
	}
	return s.enqueue("read", func(ctx context.Context) error {
		changed, err := s.Store.MarkConversationRead(ctx, conv, reader, s.now())
		if err != nil {
			return fmt.Errorf("mark read %s by %s: %w: %w", conv, reader, core.ErrPersistenceWriteFailed, err)
		}
		s.notifySenders(changed)
		f, err := core.Encode(core.EventMessagesMarkedRead, core.MessagesMarkedRead{ConversationID: conv, ReaderID: reader})
		if err != nil {
			return err
		}
		for _, m := range members {
			s.Notify.ToUser(m, f)
		}
		return nil
	})
}

func (s *StatusMachine) notifySenders(changed []*domain.Message) {
	for _, m := range changed {
		ch := domain.ChangeOf(m)
		s.Metrics.StatusChanged(ch.Status.String())
		res := s.Notify.Event(ch.SenderID, core.EventMessageStatusUpdate, ch)
		if res.SendTo == 0 {
			log.Debug().Str("module", "app.status").Str("message", string(ch.MessageID)).Str("sender", string(ch.SenderID)).Msg("sender offline, status left for reconciliation")
		}
	}
}
