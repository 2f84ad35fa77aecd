package mongo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDoc struct {
	ID      domain.UserID   `bson:"_id"`
	Friends []domain.UserID `bson:"friends"`
}

type groupDoc struct {
	ID      domain.ConversationID `bson:"_id"`
	Members []domain.UserID       `bson:"members"`
	Policy  domain.DeliveryPolicy `bson:"delivery_policy,omitempty"`
}

// Graph reads friendships and group membership owned by the REST side of
// the application. It never writes.
type Graph struct {
	users  *mongo.Collection
	groups *mongo.Collection

	DefaultPolicy domain.DeliveryPolicy
}

func (g *Graph) PresenceSubscribers(ctx context.Context, user domain.UserID) ([]domain.UserID, error) {
	seen := make(map[domain.UserID]struct{})

	var u userDoc
	err := g.users.FindOne(ctx, bson.M{"_id": user}, options.FindOne().SetProjection(bson.M{"friends": 1})).Decode(&u)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("friends of %s: %w", user, err)
	}
	for _, f := range u.Friends {
		seen[f] = struct{}{}
	}

	cur, err := g.groups.Find(ctx, bson.M{"members": user}, options.Find().SetProjection(bson.M{"members": 1}))
	if err != nil {
		return nil, fmt.Errorf("groups of %s: %w", user, err)
	}
	var groups []groupDoc
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	for _, gr := range groups {
		for _, m := range gr.Members {
			seen[m] = struct{}{}
		}
	}
	delete(seen, user)

	out := make([]domain.UserID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (g *Graph) ConversationMembers(ctx context.Context, conv domain.ConversationID) ([]domain.UserID, error) {
	if a, b, ok := domain.DirectPeers(conv); ok {
		return []domain.UserID{a, b}, nil
	}
	gr, err := g.group(ctx, conv)
	if err != nil {
		return nil, err
	}
	return gr.Members, nil
}

func (g *Graph) DeliveryPolicy(ctx context.Context, conv domain.ConversationID) (domain.DeliveryPolicy, error) {
	def := g.DefaultPolicy
	if def == "" {
		def = domain.DeliverAll
	}
	if _, _, ok := domain.DirectPeers(conv); ok {
		return def, nil
	}
	gr, err := g.group(ctx, conv)
	if err != nil {
		return def, err
	}
	if gr.Policy == "" {
		return def, nil
	}
	return gr.Policy, nil
}

func (g *Graph) group(ctx context.Context, conv domain.ConversationID) (*groupDoc, error) {
	var gr groupDoc
	err := g.groups.FindOne(ctx, bson.M{"_id": conv}).Decode(&gr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", conv, err)
	}
	return &gr, nil
}
