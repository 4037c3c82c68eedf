package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	appsv1 "k8s.io/api/apps/v1"

	"deploygate/internal/deployment/models"
	"deploygate/pkg/platform/httputil"
	"deploygate/pkg/requestcontext"
)

// OwnerParam is the route parameter naming the deployment owner. The
// ownership guard must already have matched it against the caller.
const OwnerParam = "userName"

// Service defines the deployment operations exposed over HTTP.
type Service interface {
	List(ctx context.Context, owner, namespace string) ([]models.Record, error)
	Create(ctx context.Context, owner, namespace string, d *appsv1.Deployment, opts models.CreateOptions) (*models.Record, error)
	Delete(ctx context.Context, owner, namespace, name string) error
}

// Handler serves an owner's deployments.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the deployment endpoints on a router already scoped to
// /user/{userName}.
func (h *Handler) Register(r chi.Router) {
	r.Get("/deployment", h.HandleList)
	r.Post("/deployment", h.HandleCreate)
	r.Delete("/deployment/{namespace}/{name}", h.HandleDelete)
}

// HandleList handles GET /api/v1/user/{userName}/deployment?namespace=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	owner := chi.URLParam(r, OwnerParam)
	namespace := r.URL.Query().Get("namespace")

	records, err := h.service.List(ctx, owner, namespace)
	if err != nil {
		h.logger.WarnContext(ctx, "list deployments failed",
			"request_id", requestID,
			"owner", owner,
			"namespace", namespace,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.NewDeploymentResponses(records))
}

// HandleCreate handles POST /api/v1/user/{userName}/deployment.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	owner := chi.URLParam(r, OwnerParam)

	req, ok := httputil.DecodeAndPrepare[models.CreateDeploymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Create(ctx, owner, req.Namespace, req.ToCluster(), req.Options())
	if err != nil {
		h.logger.WarnContext(ctx, "create deployment failed",
			"request_id", requestID,
			"owner", owner,
			"namespace", req.Namespace,
			"name", req.MetaDataName,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.NewDeploymentResponse(*record))
}

// HandleDelete handles DELETE /api/v1/user/{userName}/deployment/{namespace}/{name}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	owner := chi.URLParam(r, OwnerParam)
	namespace := chi.URLParam(r, "namespace")
	name := chi.URLParam(r, "name")

	if err := h.service.Delete(ctx, owner, namespace, name); err != nil {
		h.logger.WarnContext(ctx, "delete deployment failed",
			"request_id", requestID,
			"owner", owner,
			"namespace", namespace,
			"name", name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
