package ownership

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploygate/internal/platform/metrics"
	id "deploygate/pkg/domain"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/audit"
	"deploygate/pkg/testutil"
)

func principal(name string, ents ...string) *id.Principal {
	p := id.NewPrincipal(name, ents...)
	return &p
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		principal *id.Principal
		owner     string
		reason    string
	}{
		{"owner with role", principal("alice", id.EntitlementUser), "alice", ""},
		{"anonymous", nil, "alice", ReasonAnonymous},
		{"other user", principal("bob", id.EntitlementUser), "alice", ReasonOwnerMismatch},
		{"case differs", principal("Alice", id.EntitlementUser), "alice", ReasonOwnerMismatch},
		{"prefix is not a match", principal("alice", id.EntitlementUser), "alice2", ReasonOwnerMismatch},
		{"owner without role", principal("alice"), "alice", ReasonMissingRole},
		{"empty path owner", principal("alice", id.EntitlementUser), "", ReasonOwnerMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.principal, tt.owner)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
			assert.Equal(t, tt.reason, dErrors.MessageOf(err))
		})
	}
}

type capturePublisher struct{ events []audit.Event }

func (c *capturePublisher) Emit(_ context.Context, e audit.Event) error {
	c.events = append(c.events, e)
	return nil
}

func newRouter(g *Guard, reached *int) chi.Router {
	r := chi.NewRouter()
	r.Route("/user/{userName}", func(r chi.Router) {
		r.Use(g.Require("userName"))
		r.Get("/deployment", func(w http.ResponseWriter, r *http.Request) {
			*reached++
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func TestGuard_Require(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("owner passes", func(t *testing.T) {
		reached := 0
		router := newRouter(New(logger), &reached)

		req := testutil.WithUser(testutil.NewRequest(t, http.MethodGet, "/user/alice/deployment"), "alice")
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, 1, reached)
	})

	t.Run("other user is rejected before the handler", func(t *testing.T) {
		reached := 0
		m := metrics.New(prometheus.NewRegistry())
		pub := &capturePublisher{}
		router := newRouter(New(logger, WithMetrics(m), WithAuditPublisher(pub)), &reached)

		req := testutil.WithUser(testutil.NewRequest(t, http.MethodGet, "/user/alice/deployment"), "bob")
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		assert.Zero(t, reached)
		assert.Equal(t, 1.0, promtest.ToFloat64(m.OwnershipDenials))
		require.Len(t, pub.events, 1)
		assert.Equal(t, "bob", pub.events[0].Subject)
		assert.Equal(t, ReasonOwnerMismatch, pub.events[0].Reason)
		assert.Equal(t, "alice", pub.events[0].Resource)
	})

	t.Run("denials are indistinguishable to the caller", func(t *testing.T) {
		reached := 0
		router := newRouter(New(logger), &reached)

		anon := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/user/alice/deployment"))
		noRole := testutil.DoRequest(router,
			testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/user/alice/deployment"), "alice"))

		for _, rr := range []*httptest.ResponseRecorder{anon, noRole} {
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			errResp := testutil.UnmarshalErrorResponse(t, rr)
			assert.Equal(t, "k8s-1000", errResp["code"])
			assert.Equal(t, "The request is unauthorized.", errResp["reasonMessage"])
		}
		assert.Zero(t, reached)
	})
}
