// Package ownership rejects requests whose path names a user other than the
// authenticated caller.
package ownership

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deploygate/internal/platform/metrics"
	id "deploygate/pkg/domain"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/audit"
	"deploygate/pkg/platform/httputil"
	"deploygate/pkg/requestcontext"
)

// Denial reasons. They are logged but never returned to the caller, who
// always sees the same Unauthorized response.
const (
	ReasonAnonymous     = "anonymous"
	ReasonMissingRole   = "missing_entitlement"
	ReasonOwnerMismatch = "owner_mismatch"
)

// Check approves the request iff principal is present, holds the user
// entitlement and its name equals pathOwner exactly.
func Check(principal *id.Principal, pathOwner string) error {
	switch {
	case principal == nil:
		return dErrors.New(dErrors.CodeUnauthorized, ReasonAnonymous)
	case !principal.HasEntitlement(id.EntitlementUser):
		return dErrors.New(dErrors.CodeUnauthorized, ReasonMissingRole)
	case principal.Name() != pathOwner:
		return dErrors.New(dErrors.CodeUnauthorized, ReasonOwnerMismatch)
	}
	return nil
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Guard enforces Check as chi middleware.
type Guard struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Guard)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(g *Guard) { g.auditPublisher = p }
}

func New(logger *slog.Logger, opts ...Option) *Guard {
	g := &Guard{logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require reads the path owner from the named URL parameter and stops the
// request before any handler runs when Check fails.
func (g *Guard) Require(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			pathOwner := chi.URLParam(r, param)

			var principal *id.Principal
			if p, ok := requestcontext.Principal(ctx); ok {
				principal = &p
			}

			if err := Check(principal, pathOwner); err != nil {
				caller := ""
				if principal != nil {
					caller = principal.Name()
				}
				reason := dErrors.MessageOf(err)
				g.logger.WarnContext(ctx, "ownership check failed",
					"reason", reason,
					"caller", caller,
					"path_owner", pathOwner,
					"request_id", requestcontext.RequestID(ctx),
				)
				g.deny(ctx, caller, pathOwner, reason)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) deny(ctx context.Context, caller, pathOwner, reason string) {
	if g.metrics != nil {
		g.metrics.IncrementOwnershipDenied()
	}
	if g.auditPublisher == nil {
		return
	}
	event := audit.NewEvent(audit.EventOwnershipDenied, caller)
	event.Reason = reason
	event.Resource = pathOwner
	if err := g.auditPublisher.Emit(ctx, event); err != nil {
		g.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
