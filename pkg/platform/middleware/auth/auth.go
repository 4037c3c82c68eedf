package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "deploygate/pkg/domain"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/audit"
	"deploygate/pkg/platform/httputil"
	request "deploygate/pkg/platform/middleware/request"
	"deploygate/pkg/requestcontext"
)

// TokenVerifier checks a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (subject string, err error)
}

// PrincipalResolver loads the caller named by a verified token subject.
// It returns a CodeNotFound error when the subject is unknown.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, name string) (id.Principal, error)
}

// FailureRecorder counts rejected credentials by reason.
type FailureRecorder interface {
	IncrementAuthFailure(reason string)
}

// Failure reasons, used for logs, metrics and audit events.
const (
	ReasonInvalidToken     = "invalid_token"
	ReasonUnknownPrincipal = "unknown_principal"
	ReasonLookupFailed     = "lookup_failed"
)

const bearerPrefix = "Bearer "

type gate struct {
	verifier TokenVerifier
	resolver PrincipalResolver
	logger   *slog.Logger
	failures FailureRecorder
	auditor  audit.Publisher
}

type Option func(*gate)

func WithFailureRecorder(r FailureRecorder) Option {
	return func(g *gate) { g.failures = r }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(g *gate) { g.auditor = p }
}

// Authenticate establishes the caller's identity from the Authorization header.
// Requests without the header pass through anonymously; routes that need a
// caller enforce that themselves. A header that fails verification is rejected
// with 401, and a valid token naming an unknown user with 404.
func Authenticate(verifier TokenVerifier, resolver PrincipalResolver, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	g := &gate{verifier: verifier, resolver: resolver, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g.middleware
}

func (g *gate) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		requestID := request.GetRequestID(ctx)
		token := strings.TrimPrefix(header, bearerPrefix)

		subject, err := g.verifier.Verify(token)
		if err != nil {
			g.logger.WarnContext(ctx, "unauthorized access - invalid token",
				"error", err,
				"request_id", requestID,
			)
			g.reject(ctx, "", ReasonInvalidToken)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token"))
			return
		}

		principal, err := g.resolver.ResolvePrincipal(ctx, subject)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				g.logger.WarnContext(ctx, "token subject does not exist",
					"subject", subject,
					"request_id", requestID,
				)
				g.reject(ctx, subject, ReasonUnknownPrincipal)
			} else {
				g.logger.ErrorContext(ctx, "failed to resolve principal",
					"subject", subject,
					"error", err,
					"request_id", requestID,
				)
				g.reject(ctx, subject, ReasonLookupFailed)
			}
			httputil.WriteError(w, err)
			return
		}

		ctx = requestcontext.WithPrincipal(ctx, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *gate) reject(ctx context.Context, subject, reason string) {
	if g.failures != nil {
		g.failures.IncrementAuthFailure(reason)
	}
	if g.auditor == nil {
		return
	}
	event := audit.NewEvent(audit.EventAuthFailed, subject)
	event.Reason = reason
	if err := g.auditor.Emit(ctx, event); err != nil {
		g.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
