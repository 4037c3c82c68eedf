package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"deploygate/internal/identity/handler/mocks"
	"deploygate/internal/identity/models"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type IdentityHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestIdentityHandlerSuite(t *testing.T) {
	suite.Run(t, new(IdentityHandlerSuite))
}

func (s *IdentityHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *IdentityHandlerSuite) TestRegister() {
	s.Run("returns user name and display name", func() {
		s.service.EXPECT().Register(gomock.Any(), &models.RegisterRequest{Name: "Alice", UserName: "alice", Password: "pw"}).
			Return(&models.User{UserName: "alice", Name: "Alice", Password: "hash"}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/authorize",
			map[string]string{"name": " Alice ", "userName": "alice", "password": "pw"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(map[string]any{"userName": "alice", "name": "Alice"}, *resp)
	})

	s.Run("blank user name never reaches the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/authorize",
			map[string]string{"userName": " ", "password": "pw"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "k8s-1001")
	})

	s.Run("duplicate user is a bad request", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "User already exists"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/authorize",
			map[string]string{"userName": "alice", "password": "pw"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertJSONContains(s.T(), rr, "reasonMessage", "User already exists")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/authorize", "{")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "k8s-1001")
	})
}

func (s *IdentityHandlerSuite) TestToken() {
	s.Run("returns the issued token", func() {
		s.service.EXPECT().IssueToken(gomock.Any(), &models.TokenRequest{UserName: "alice", Password: "pw"}).
			Return("signed.jwt.value", nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/token",
			map[string]string{"userName": "alice", "password": "pw"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "token", "signed.jwt.value")
	})

	s.Run("bad credentials are not found", func() {
		s.service.EXPECT().IssueToken(gomock.Any(), gomock.Any()).
			Return("", dErrors.New(dErrors.CodeNotFound, "Username and password are not valid"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/token",
			map[string]string{"userName": "alice", "password": "bad"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "k8s-1002")
	})
}
