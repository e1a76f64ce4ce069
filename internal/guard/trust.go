package guard

import (
	"net/http"

	"lendstock.org/internal/assertion"
)

// TrustAssertions builds a middleware that establishes the security
// context from the edge's assertion headers. The context is created at
// most once per request: an already-present principal (a stronger
// authentication context) is never overwritten. Requests without a
// parseable assertion proceed unauthenticated and are left for the
// route table to reject.
//
// sealSecret enables HMAC verification of the assertion headers; pass
// nil when network isolation of the ingress path is guaranteed.
func TrustAssertions(sealSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			a, ok := assertion.FromHeader(r.Header, sealSecret)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := ContextWithPrincipal(r.Context(), Principal{
				Username: a.Username,
				Role:     a.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
