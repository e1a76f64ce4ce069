// Package guard establishes and enforces the per-request security
// context inside internal services. The trust filter turns the edge's
// identity assertion into a context principal; the route table decides
// which roles a route admits. Neither step ever re-verifies a token;
// admission control happened at the edge.
package guard

import (
	"context"

	"lendstock.org/internal/identity"
)

// Principal is the request-scoped security context: who the caller is
// and the single role granted by the edge assertion. It lives only in
// the request context and is discarded with it.
type Principal struct {
	Username string
	Role     identity.Role
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the principal to the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &p)
}

// PrincipalFromContext extracts the principal established for this
// request, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
