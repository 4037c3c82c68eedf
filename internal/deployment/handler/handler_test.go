package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"deploygate/internal/deployment/handler/mocks"
	"deploygate/internal/deployment/models"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type DeploymentHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestDeploymentHandlerSuite(t *testing.T) {
	suite.Run(t, new(DeploymentHandlerSuite))
}

func (s *DeploymentHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	s.router.Route("/user/{userName}", h.Register)
}

var created = time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC)

func record(namespace, name string) models.Record {
	return models.Record{
		OwnerName:      "alice",
		Namespace:      namespace,
		DeploymentName: name,
		AppName:        name,
		Image:          "nginx",
		Replicas:       2,
		APIVersion:     models.DefaultAPIVersion,
		Kind:           models.DefaultKind,
		CreatedAt:      created,
	}
}

func createBody() map[string]any {
	return map[string]any{
		"apiVersion":      "apps/v1",
		"kind":            "Deployment",
		"metaDataName":    "web",
		"replicas":        2,
		"appName":         "web",
		"image":           "nginx",
		"imagePullPolicy": "ALWAYS",
		"containerPorts":  []int{80, 443},
		"namespace":       "default",
	}
}

func (s *DeploymentHandlerSuite) TestList() {
	s.Run("returns records for the path owner", func() {
		s.service.EXPECT().List(gomock.Any(), "alice", "default").
			Return([]models.Record{record("default", "web")}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/alice/deployment?namespace=default"))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[[]map[string]any](s.T(), rr)
		s.Equal([]map[string]any{{
			"apiVersion":        "apps/v1",
			"kind":              "Deployment",
			"creationTimestamp": "03/02/2024 02:05:06",
			"name":              "web",
			"namespace":         "default",
			"image":             "nginx",
			"replicas":          float64(2),
		}}, *resp)
	})

	s.Run("no namespace lists everywhere and empty encodes as array", func() {
		s.service.EXPECT().List(gomock.Any(), "alice", "").Return([]models.Record{}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/alice/deployment"))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq("[]", string(testutil.ReadBody(s.T(), rr)))
	})

	s.Run("unknown owner", func() {
		s.service.EXPECT().List(gomock.Any(), "ghost", "").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "User can not be found by given username : ghost"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/ghost/deployment"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "k8s-1002")
		testutil.AssertJSONContains(s.T(), rr, "reasonMessage", "User can not be found by given username : ghost")
	})

	s.Run("cluster unreachable is a server error", func() {
		s.service.EXPECT().List(gomock.Any(), "alice", "").Return(nil, dErrors.New(dErrors.CodeClusterAPI, ""))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/alice/deployment"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "k8s-1003")
	})
}

func (s *DeploymentHandlerSuite) TestCreate() {
	s.Run("builds the cluster object from the body", func() {
		s.service.EXPECT().Create(gomock.Any(), "alice", "default", gomock.Any(), models.CreateOptions{}).
			DoAndReturn(func(_ context.Context, _, _ string, d *appsv1.Deployment, _ models.CreateOptions) (*models.Record, error) {
				s.Equal("web", d.Name)
				s.Equal(int32(2), *d.Spec.Replicas)
				s.Equal(map[string]string{models.AppLabel: "web"}, d.Spec.Selector.MatchLabels)
				container := d.Spec.Template.Spec.Containers[0]
				s.Equal(corev1.PullAlways, container.ImagePullPolicy)
				s.Len(container.Ports, 2)
				r := record("default", "web")
				return &r, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/user/alice/deployment", createBody())
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "name", "web")
		testutil.AssertJSONContains(s.T(), rr, "creationTimestamp", "03/02/2024 02:05:06")
	})

	s.Run("dry run and pretty are forwarded", func() {
		body := createBody()
		body["dryRun"] = "All"
		body["pretty"] = true
		r := record("default", "web")
		s.service.EXPECT().Create(gomock.Any(), "alice", "default", gomock.Any(), models.CreateOptions{Pretty: true, DryRun: "All"}).
			Return(&r, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/user/alice/deployment", body))

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("invalid replicas never reach the service", func() {
		body := createBody()
		body["replicas"] = 0

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/user/alice/deployment", body))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "k8s-1001")
		testutil.AssertJSONContains(s.T(), rr, "reasonMessage", "Given parameter replicas must be at least 1")
	})

	s.Run("missing image", func() {
		body := createBody()
		delete(body, "image")

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/user/alice/deployment", body))

		testutil.AssertJSONContains(s.T(), rr, "reasonMessage", "Given parameter image can not be null or empty")
	})

	s.Run("cluster rejection carries the cluster message", func() {
		s.service.EXPECT().Create(gomock.Any(), "alice", "default", gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeClusterAPI, `deployments.apps "web" already exists`))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/user/alice/deployment", createBody()))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "k8s-1001")
		testutil.AssertJSONContains(s.T(), rr, "reasonMessage", `deployments.apps "web" already exists`)
	})
}

func (s *DeploymentHandlerSuite) TestDelete() {
	s.Run("no content on success", func() {
		s.service.EXPECT().Delete(gomock.Any(), "alice", "default", "web").Return(nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/user/alice/deployment/default/web"))

		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("not found", func() {
		s.service.EXPECT().Delete(gomock.Any(), "alice", "default", "web").
			Return(dErrors.New(dErrors.CodeNotFound, "Deployment can not be found : default/web"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/user/alice/deployment/default/web"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "k8s-1002")
	})
}
