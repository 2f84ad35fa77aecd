package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Messages is a MessageStore. Status transitions are single UpdateMany calls
// with an aggregation pipeline: each document is updated atomically, the
// status can only grow, and documents whose status grew are tagged with a
// per-call token so the caller can read back exactly what changed.
type Messages struct {
	coll *mongo.Collection
}

func (s *Messages) Insert(ctx context.Context, m *domain.Message) error {
	doc := *m
	if doc.DeliveredTo == nil {
		doc.DeliveredTo = []domain.UserID{}
	}
	if doc.ReadBy == nil {
		doc.ReadBy = []domain.UserID{}
	}
	doc.Quorum = doc.EffectiveQuorum()
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

func (s *Messages) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var m domain.Message
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Messages) Deliver(ctx context.Context, recipient domain.UserID, ids []domain.MessageID, at time.Time) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"_id":          bson.M{"$in": ids},
		"recipients":   recipient,
		"delivered_to": bson.M{"$ne": recipient},
	}
	return s.advance(ctx, filter, receiptStage(recipient, "delivered_to"), at)
}

func (s *Messages) Undelivered(ctx context.Context, recipient domain.UserID, limit int) ([]*domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{
		"recipients":   recipient,
		"delivered_to": bson.M{"$ne": recipient},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("find undelivered for %s: %w", recipient, err)
	}
	var out []*domain.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Messages) MarkConversationRead(ctx context.Context, conv domain.ConversationID, reader domain.UserID, at time.Time) ([]*domain.Message, error) {
	filter := bson.M{
		"conversation_id": conv,
		"recipients":      reader,
		"read_by":         bson.M{"$ne": reader},
	}
	stage := receiptStage(reader, "delivered_to", "read_by")
	return s.advance(ctx, filter, stage, at)
}

func (s *Messages) advance(ctx context.Context, filter bson.M, receipts bson.D, at time.Time) ([]*domain.Message, error) {
	token := uuid.NewString()
	if _, err := s.coll.UpdateMany(ctx, filter, statusPipeline(receipts, token, at)); err != nil {
		return nil, fmt.Errorf("advance status: %w", err)
	}
	cur, err := s.coll.Find(ctx, bson.M{"change_token": token}, options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("read back changed: %w", err)
	}
	var out []*domain.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// receiptStage adds user to each of the given receipt arrays.
func receiptStage(user domain.UserID, fields ...string) bson.D {
	set := bson.D{}
	for _, f := range fields {
		set = append(set, bson.E{Key: f, Value: bson.M{
			"$setUnion": bson.A{bson.M{"$ifNull": bson.A{"$" + f, bson.A{}}}, bson.A{user}},
		}})
	}
	return bson.D{{Key: "$set", Value: set}}
}

// statusPipeline recomputes the message-level status from the receipt sets.
// Inside one $set stage every "$field" reference sees the pre-stage value.
func statusPipeline(receipts bson.D, token string, at time.Time) mongo.Pipeline {
	size := func(f string) bson.M {
		return bson.M{"$size": bson.M{"$ifNull": bson.A{"$" + f, bson.A{}}}}
	}
	next := bson.M{"$switch": bson.M{
		"branches": bson.A{
			bson.M{"case": bson.M{"$gte": bson.A{size("read_by"), "$quorum"}}, "then": int(domain.StatusRead)},
			bson.M{"case": bson.M{"$gte": bson.A{size("delivered_to"), "$quorum"}}, "then": int(domain.StatusDelivered)},
		},
		"default": int(domain.StatusSent),
	}}
	grew := bson.M{"$gt": bson.A{"$_next", "$status"}}
	return mongo.Pipeline{
		receipts,
		{{Key: "$set", Value: bson.D{{Key: "_next", Value: next}}}},
		{{Key: "$set", Value: bson.D{
			{Key: "change_token", Value: bson.M{"$cond": bson.A{grew, token, "$change_token"}}},
			{Key: "delivered_at", Value: bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$gte": bson.A{"$_next", int(domain.StatusDelivered)}},
					bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$delivered_at", nil}}, nil}},
				}},
				at,
				"$delivered_at",
			}}},
			{Key: "read_at", Value: bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$_next", int(domain.StatusRead)}},
					bson.M{"$lt": bson.A{"$status", int(domain.StatusRead)}},
				}},
				at,
				"$read_at",
			}}},
			{Key: "status", Value: bson.M{"$max": bson.A{"$status", "$_next"}}},
		}}},
		{{Key: "$unset", Value: "_next"}},
	}
}
