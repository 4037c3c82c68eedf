// Package httptransport assembles the public HTTP surface. It only wires
// middleware and handlers; domain logic stays in the service packages.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	deploymenthandler "deploygate/internal/deployment/handler"
	identityhandler "deploygate/internal/identity/handler"
	"deploygate/internal/ownership"
	"deploygate/internal/platform/metrics"
	"deploygate/pkg/platform/audit"
	"deploygate/pkg/platform/httputil"
	"deploygate/pkg/platform/middleware/auth"
	"deploygate/pkg/platform/middleware/metadata"
	request "deploygate/pkg/platform/middleware/request"
	"deploygate/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the router mounts. Metrics, Gatherer,
// Audit and HealthChecks are optional.
type Dependencies struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Audit        audit.Publisher
	Verifier     auth.TokenVerifier
	Principals   auth.PrincipalResolver
	Identity     *identityhandler.Handler
	Deployments  *deploymenthandler.Handler
	HealthChecks map[string]HealthCheck
}

// NewRouter wires every public endpoint under /api/v1 plus /health and
// /metrics. Deployment routes sit behind the ownership guard, which runs
// before any handler touches a store or the cluster.
func NewRouter(d Dependencies) http.Handler {
	authOpts := []auth.Option{}
	guardOpts := []ownership.Option{}
	if d.Metrics != nil {
		authOpts = append(authOpts, auth.WithFailureRecorder(d.Metrics))
		guardOpts = append(guardOpts, ownership.WithMetrics(d.Metrics))
	}
	if d.Audit != nil {
		authOpts = append(authOpts, auth.WithAuditPublisher(d.Audit))
		guardOpts = append(guardOpts, ownership.WithAuditPublisher(d.Audit))
	}
	guard := ownership.New(d.Logger, guardOpts...)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)

	r.Get("/health", healthHandler(d.HealthChecks))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(d.Verifier, d.Principals, d.Logger, authOpts...))

		d.Identity.Register(r)

		r.Route("/user/{"+deploymenthandler.OwnerParam+"}", func(r chi.Router) {
			r.Use(guard.Require(deploymenthandler.OwnerParam))
			d.Deployments.Register(r)
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks)+1)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		if status == http.StatusOK {
			results["status"] = "ok"
		} else {
			results["status"] = "degraded"
		}
		httputil.WriteJSON(w, status, results)
	}
}
