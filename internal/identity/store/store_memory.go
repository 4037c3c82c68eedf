// Package store persists registered users.
package store

import (
	"context"
	"sync"

	"deploygate/internal/identity/models"
	"deploygate/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users keyed by user name. Lookups return copies so
// callers cannot mutate stored state.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]models.User)}
}

// Create stores user unless the user name is taken.
func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.UserName]; ok {
		return sentinel.ErrConflict
	}
	s.users[user.UserName] = clone(user)
	return nil
}

func (s *InMemoryUserStore) FindByUserName(_ context.Context, userName string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userName]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&user)
	return &out, nil
}

func clone(u *models.User) models.User {
	c := *u
	c.Authorities = append([]string(nil), u.Authorities...)
	return c
}
