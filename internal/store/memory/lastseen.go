package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

type LastSeen struct {
	mu sync.RWMutex
	m  map[domain.UserID]time.Time
}

func NewLastSeen() *LastSeen {
	return &LastSeen{m: make(map[domain.UserID]time.Time)}
}

func (s *LastSeen) SetLastSeen(_ context.Context, user domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.m[user]; ok && prev.After(at) {
		return nil
	}
	s.m[user] = at
	return nil
}

func (s *LastSeen) LastSeen(_ context.Context, user domain.UserID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.m[user]
	return at, ok, nil
}
