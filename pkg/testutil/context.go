package testutil

import (
	"net/http"

	id "deploygate/pkg/domain"
	"deploygate/pkg/requestcontext"
)

// WithPrincipal adds an authenticated caller to the request context.
// This simulates what the auth middleware would do for a verified token.
func WithPrincipal(req *http.Request, name string, entitlements ...string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), id.NewPrincipal(name, entitlements...))
	return req.WithContext(ctx)
}

// WithUser adds a caller holding the standard user entitlement.
func WithUser(req *http.Request, name string) *http.Request {
	return WithPrincipal(req, name, id.EntitlementUser)
}
