package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"deploygate/internal/deployment/models"
	"deploygate/internal/platform/metrics"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/sentinel"
)

type GatewaySuite struct {
	suite.Suite
	ctx     context.Context
	client  *fake.Clientset
	gateway *Gateway
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func deployment(namespace, name string, labels map[string]string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
	}
}

func (s *GatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.client = fake.NewSimpleClientset(
		deployment("default", "alice-web", map[string]string{models.OwnerLabel: "alice"}),
		deployment("staging", "alice-api", map[string]string{models.OwnerLabel: "alice", "tier": "backend"}),
		deployment("default", "bob-web", map[string]string{models.OwnerLabel: "bob"}),
		deployment("default", "unlabelled", nil),
	)
	s.gateway = New(s.client, WithMetrics(metrics.New(prometheus.NewRegistry())))
}

func names(items []appsv1.Deployment) []string {
	out := make([]string, 0, len(items))
	for _, d := range items {
		out = append(out, d.Name)
	}
	return out
}

func (s *GatewaySuite) TestList() {
	s.Run("all namespaces by owner label", func() {
		items, err := s.gateway.List(s.ctx, "alice", "")
		s.Require().NoError(err)
		s.ElementsMatch([]string{"alice-web", "alice-api"}, names(items))
	})

	s.Run("single namespace", func() {
		items, err := s.gateway.List(s.ctx, "alice", "staging")
		s.Require().NoError(err)
		s.Equal([]string{"alice-api"}, names(items))
	})

	s.Run("owner without deployments", func() {
		items, err := s.gateway.List(s.ctx, "carol", "")
		s.Require().NoError(err)
		s.Empty(items)
	})

	s.Run("selector matches exact owner", func() {
		selector, err := OwnerSelector("alice")
		s.Require().NoError(err)
		s.Equal("ownerName=alice", selector)
	})

	s.Run("owner with a comma cannot widen the selector", func() {
		_, err := s.client.AppsV1().Deployments("default").Create(s.ctx,
			deployment("default", "secret-app", map[string]string{models.OwnerLabel: "alice", "team": "x"}),
			metav1.CreateOptions{})
		s.Require().NoError(err)
		s.client.ClearActions()

		items, err := s.gateway.List(s.ctx, "alice,team", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Empty(items)
		s.Empty(s.client.Actions(), "no list reaches the cluster")
	})

	s.Run("owner outside the label value syntax", func() {
		for _, owner := range []string{"alice team", "alice=x", "-alice", "a/b"} {
			_, err := OwnerSelector(owner)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), owner)
		}
	})
}

func (s *GatewaySuite) TestCreate() {
	s.Run("adds owner as sole label when none exist", func() {
		input := deployment("", "fresh", nil)

		created, err := s.gateway.Create(s.ctx, "alice", "default", input, models.CreateOptions{})
		s.Require().NoError(err)
		s.Equal(map[string]string{models.OwnerLabel: "alice"}, created.Labels)
		s.Equal("default", created.Namespace)
		s.Nil(input.Labels, "caller's object is not mutated")

		stored, err := s.client.AppsV1().Deployments("default").Get(s.ctx, "fresh", metav1.GetOptions{})
		s.Require().NoError(err)
		s.Equal("alice", stored.Labels[models.OwnerLabel])
	})

	s.Run("merges into existing labels and overrides a forged owner", func() {
		input := deployment("", "merged", map[string]string{"tier": "web", models.OwnerLabel: "mallory"})

		created, err := s.gateway.Create(s.ctx, "alice", "default", input, models.CreateOptions{})
		s.Require().NoError(err)
		s.Equal(map[string]string{"tier": "web", models.OwnerLabel: "alice"}, created.Labels)
	})

	s.Run("forwards dry run", func() {
		var seen metav1.CreateOptions
		s.client.PrependReactor("create", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
			seen = action.(k8stesting.CreateActionImpl).GetCreateOptions()
			return false, nil, nil
		})

		_, err := s.gateway.Create(s.ctx, "alice", "default", deployment("", "dry", nil), models.CreateOptions{DryRun: "All"})
		s.Require().NoError(err)
		s.Equal([]string{"All"}, seen.DryRun)
	})

	s.Run("rejects an owner that is not a label value", func() {
		_, err := s.gateway.Create(s.ctx, "alice,team", "default", deployment("", "bad-owner", nil), models.CreateOptions{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = s.client.AppsV1().Deployments("default").Get(s.ctx, "bad-owner", metav1.GetOptions{})
		s.True(apierrors.IsNotFound(err))
	})
}

func (s *GatewaySuite) TestCreateErrors() {
	s.Run("api status message is kept", func() {
		s.client.PrependReactor("create", "deployments", func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, apierrors.NewAlreadyExists(appsv1.Resource("deployments"), "alice-web")
		})

		_, err := s.gateway.Create(s.ctx, "alice", "default", deployment("", "alice-web", nil), models.CreateOptions{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeClusterAPI))
		s.Equal(`deployments.apps "alice-web" already exists`, dErrors.MessageOf(err))
	})
}

func (s *GatewaySuite) TestTransportErrorHasNoMessage() {
	s.client.PrependReactor("list", "deployments", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})

	_, err := s.gateway.List(s.ctx, "alice", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeClusterAPI))
	s.Empty(dErrors.MessageOf(err))
}

func (s *GatewaySuite) TestDelete() {
	s.Run("owner deletes own deployment", func() {
		s.Require().NoError(s.gateway.Delete(s.ctx, "alice", "default", "alice-web"))

		_, err := s.client.AppsV1().Deployments("default").Get(s.ctx, "alice-web", metav1.GetOptions{})
		s.True(apierrors.IsNotFound(err))
	})

	s.Run("someone else's deployment looks missing", func() {
		err := s.gateway.Delete(s.ctx, "alice", "default", "bob-web")
		s.ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.client.AppsV1().Deployments("default").Get(s.ctx, "bob-web", metav1.GetOptions{})
		s.NoError(err)
	})

	s.Run("missing deployment", func() {
		s.ErrorIs(s.gateway.Delete(s.ctx, "alice", "default", "ghost"), sentinel.ErrNotFound)
	})
}
