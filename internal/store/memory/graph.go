package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type group struct {
	members []domain.UserID
	policy  domain.DeliveryPolicy
}

// Graph is a SocialGraph kept in memory.
type Graph struct {
	mu      sync.RWMutex
	friends map[domain.UserID]map[domain.UserID]struct{}
	groups  map[domain.ConversationID]*group

	DefaultPolicy domain.DeliveryPolicy
}

func NewGraph() *Graph {
	return &Graph{
		friends:       make(map[domain.UserID]map[domain.UserID]struct{}),
		groups:        make(map[domain.ConversationID]*group),
		DefaultPolicy: domain.DeliverAll,
	}
}

func (g *Graph) AddFriends(a, b domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.link(a, b)
	g.link(b, a)
}

func (g *Graph) link(a, b domain.UserID) {
	set := g.friends[a]
	if set == nil {
		set = make(map[domain.UserID]struct{})
		g.friends[a] = set
	}
	set[b] = struct{}{}
}

// AddGroup creates or replaces a group. An empty policy means DefaultPolicy.
func (g *Graph) AddGroup(id domain.ConversationID, policy domain.DeliveryPolicy, members ...domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[id] = &group{members: slices.Clone(members), policy: policy}
}

func (g *Graph) PresenceSubscribers(_ context.Context, user domain.UserID) ([]domain.UserID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[domain.UserID]struct{})
	for f := range g.friends[user] {
		seen[f] = struct{}{}
	}
	for _, gr := range g.groups {
		if !slices.Contains(gr.members, user) {
			continue
		}
		for _, m := range gr.members {
			seen[m] = struct{}{}
		}
	}
	delete(seen, user)
	out := make([]domain.UserID, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	slices.Sort(out)
	return out, nil
}

func (g *Graph) ConversationMembers(_ context.Context, conv domain.ConversationID) ([]domain.UserID, error) {
	if a, b, ok := domain.DirectPeers(conv); ok {
		return []domain.UserID{a, b}, nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	gr, ok := g.groups[conv]
	if !ok {
		return nil, core.ErrConversationNotFound
	}
	return slices.Clone(gr.members), nil
}

func (g *Graph) DeliveryPolicy(_ context.Context, conv domain.ConversationID) (domain.DeliveryPolicy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if gr, ok := g.groups[conv]; ok && gr.policy != "" {
		return gr.policy, nil
	}
	return g.DefaultPolicy, nil
}
