package domain

import "slices"

// EntitlementUser is granted to every registered user and is required for the
// per-user deployment endpoints.
const EntitlementUser = "ROLE_USER"

// Principal is the authenticated caller. It is an immutable value: the
// entitlement slice is copied on construction and never exposed.
type Principal struct {
	name         string
	entitlements []string
}

// NewPrincipal builds a principal from a verified subject and its entitlements.
func NewPrincipal(name string, entitlements ...string) Principal {
	return Principal{name: name, entitlements: slices.Clone(entitlements)}
}

func (p Principal) Name() string { return p.name }

func (p Principal) HasEntitlement(e string) bool {
	return slices.Contains(p.entitlements, e)
}

func (p Principal) Entitlements() []string {
	return slices.Clone(p.entitlements)
}
