package store

import (
	"context"
	"testing"
	"time"

	"deploygate/internal/identity/models"
	id "deploygate/pkg/domain"
	"deploygate/pkg/platform/sentinel"

	"github.com/stretchr/testify/suite"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	store *InMemoryUserStore
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.store = NewInMemoryUserStore()
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func newUser(name string) *models.User {
	return &models.User{
		ID:          id.NewUserID(),
		UserName:    name,
		Name:        "Test " + name,
		Password:    "hash",
		Authorities: []string{id.EntitlementUser},
		CreatedAt:   time.Now().UTC(),
	}
}

func (s *InMemoryUserStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	user := newUser("alice")
	s.Require().NoError(s.store.Create(ctx, user))

	found, err := s.store.FindByUserName(ctx, "alice")
	s.Require().NoError(err)
	s.Equal(user, found)
}

func (s *InMemoryUserStoreSuite) TestLookupIsCaseSensitive() {
	s.Require().NoError(s.store.Create(context.Background(), newUser("alice")))

	_, err := s.store.FindByUserName(context.Background(), "Alice")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryUserStoreSuite) TestDuplicateUserName() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newUser("alice")))

	err := s.store.Create(ctx, newUser("alice"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryUserStoreSuite) TestReturnedUserIsACopy() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newUser("alice")))

	found, err := s.store.FindByUserName(ctx, "alice")
	s.Require().NoError(err)
	found.Authorities[0] = "ROLE_ADMIN"

	again, err := s.store.FindByUserName(ctx, "alice")
	s.Require().NoError(err)
	s.Equal([]string{id.EntitlementUser}, again.Authorities)
}
