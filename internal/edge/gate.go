// Package edge is the single internet-facing entry point. It extracts
// the bearer token from each inbound request, verifies it against the
// identity service, and forwards the request to the routed upstream
// with a trusted assertion attached. Internal services never see a raw
// token and never re-verify one.
package edge

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"lendstock.org/internal/assertion"
	"lendstock.org/internal/config"
	"lendstock.org/internal/fault"
	"lendstock.org/internal/httpx"
	"lendstock.org/internal/obs"
)

const serviceName = "edge"

type route struct {
	prefix string
	proxy  *httputil.ReverseProxy
}

// Gate proxies external traffic to internal services after
// authenticating it.
type Gate struct {
	routes     []route
	validator  TokenValidator
	sealSecret []byte
	version    string

	rateBurst  int
	ratePerSec int
}

// New assembles the gate from configuration. Routes are matched
// longest-prefix-first so /v1/items/reservations can shadow /v1/items.
func New(cfg config.Edge, version string) *Gate {
	g := &Gate{
		validator:  NewValidateClient(cfg.IdentityURL, cfg.ValidateTimeout),
		sealSecret: []byte(cfg.AssertionSecret),
		version:    version,
		rateBurst:  cfg.RateBurst,
		ratePerSec: cfg.RatePerSec,
	}
	if g.rateBurst <= 0 {
		g.rateBurst = 20
	}
	if g.ratePerSec <= 0 {
		g.ratePerSec = 10
	}
	for _, r := range cfg.Routes {
		g.routes = append(g.routes, route{prefix: r.Prefix, proxy: newProxy(r.Upstream)})
	}
	sort.SliceStable(g.routes, func(i, j int) bool {
		return len(g.routes[i].prefix) > len(g.routes[j].prefix)
	})
	return g
}

func newProxy(upstream *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "proxy_error",
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		f := fault.Upstream("routed service unreachable")
		fault.Write(w, f.Status, f.Message, f.Details)
	}
	return proxy
}

// publicPath reports whether the request may pass without a token:
// login, token refresh, self-registration and health probing.
func publicPath(r *http.Request) bool {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/login":
		return true
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/refresh/"):
		return true
	case r.Method == http.MethodPost && r.URL.Path == "/v1/identities":
		return true
	case r.URL.Path == "/healthz":
		return true
	}
	return false
}

// extractBearer returns the token from the Authorization header, or ""
// when the header is absent or not a Bearer scheme.
func extractBearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (g *Gate) match(path string) (route, bool) {
	for _, rt := range g.routes {
		if strings.HasPrefix(path, rt.prefix) {
			return rt, true
		}
	}
	return route{}, false
}

// ServeHTTP authenticates and forwards one request. Inbound assertion
// headers are always removed first so an external caller can never
// smuggle an identity past the boundary.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assertion.Strip(r.Header)

	if r.URL.Path == "/healthz" && r.Method == http.MethodGet {
		g.healthz(w, r)
		return
	}

	rt, ok := g.match(r.URL.Path)
	if !ok {
		fault.Write(w, http.StatusNotFound, "resource not found", "")
		return
	}

	// Public paths forward without requiring a token, but a verified
	// bearer still yields an assertion, since registering privileged
	// roles needs the caller's identity. An invalid token or validator
	// outage leaves the request anonymous rather than blocking login.
	if publicPath(r) {
		if tok := extractBearer(r); tok != "" {
			if a, err := g.validator.Validate(r.Context(), tok); err == nil {
				obs.CountValidation(obs.ValidationOK)
				assertion.Attach(r.Header, a, g.sealSecret)
			}
		}
		rt.proxy.ServeHTTP(w, r)
		return
	}

	// Missing, malformed and rejected tokens all land on the same 403
	// so a caller cannot tell which failure it hit.
	tok := extractBearer(r)
	if tok == "" {
		g.deny(w, r, "missing_token")
		return
	}

	a, err := g.validator.Validate(r.Context(), tok)
	if err != nil {
		if errors.Is(err, ErrUpstream) {
			obs.CountValidation(obs.ValidationUpstream)
			obs.LogRequest(map[string]any{
				"level": "error",
				"msg":   "validation_upstream_failure",
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			f := fault.Upstream("identity verification unavailable")
			fault.Write(w, f.Status, f.Message, f.Details)
			return
		}
		g.deny(w, r, "invalid_token")
		return
	}

	obs.CountValidation(obs.ValidationOK)
	assertion.Attach(r.Header, a, g.sealSecret)
	rt.proxy.ServeHTTP(w, r)
}

func (g *Gate) deny(w http.ResponseWriter, r *http.Request, reason string) {
	obs.CountValidation(obs.ValidationRejected)
	obs.LogRequest(map[string]any{
		"level":  "warn",
		"msg":    "edge_denied",
		"method": r.Method,
		"path":   r.URL.Path,
		"reason": reason,
	})
	f := fault.Forbidden("")
	fault.Write(w, f.Status, f.Message, f.Details)
}

func (g *Gate) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"edge","version":"` + g.version + `"}`))
}

// Handler assembles the middleware chain around the gate.
func (g *Gate) Handler() http.Handler {
	var h http.Handler = g
	h = fault.Recover(h)
	h = httpx.MaxBodyBytes(h, 1<<20)
	h = httpx.SecurityHeaders(h)
	h = httpx.RateLimit(h, g.rateBurst, g.ratePerSec)
	h = httpx.LoggingJSON(h)
	h = httpx.RequestID(h)
	return obs.Instrument(serviceName, h)
}
