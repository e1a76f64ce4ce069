// Package httpapi is the HTTP surface of the identity service: login,
// token validation and refresh for the edge gate, and the guarded
// identity lifecycle endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"lendstock.org/internal/fault"
	"lendstock.org/internal/guard"
	"lendstock.org/internal/httpx"
	"lendstock.org/internal/identity"
	"lendstock.org/internal/obs"
	"lendstock.org/internal/token"
)

const serviceName = "identity"

// ReadyProbe reports whether the service can reach its backing store.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the identity service HTTP layer.
type API struct {
	mux        *http.ServeMux
	identities *identity.Service
	codec      *token.Codec
	readyProbe ReadyProbe
	sealSecret []byte
	version    string

	rateBurst  int
	ratePerSec int
}

// New wires routes for the identity service.
func New(identities *identity.Service, codec *token.Codec, rp ReadyProbe, sealSecret []byte, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		identities: identities,
		codec:      codec,
		readyProbe: rp,
		sealSecret: sealSecret,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Handle("/login", fault.Handler(a.handleLogin))
	a.mux.Handle("/validate/", fault.Handler(a.handleValidate))
	a.mux.Handle("/refresh/", fault.Handler(a.handleRefresh))

	a.mux.Handle("/v1/identities", fault.Handler(a.handleIdentities))
	a.mux.Handle("/v1/identities/", fault.Handler(a.handleIdentityResource))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fault.Write(w, http.StatusNotFound, "resource not found", "")
	})

	return a
}

// guardTable declares which roles each route admits. Validation and
// refresh are reachable without an assertion because the edge calls
// them while establishing one; everything else under /v1/identities/
// requires an administrative role.
func (a *API) guardTable() *guard.Table {
	admins := []identity.Role{identity.RoleAdmin, identity.RoleSuperAdmin}
	return guard.NewTable(
		guard.Rule{Method: "*", Path: "/healthz", Public: true},
		guard.Rule{Method: "*", Path: "/readyz", Public: true},
		guard.Rule{Method: http.MethodGet, Path: "/metrics", Public: true},
		guard.Rule{Method: http.MethodPost, Path: "/login", Public: true},
		guard.Rule{Method: http.MethodGet, Path: "/validate/*", Public: true},
		guard.Rule{Method: http.MethodGet, Path: "/refresh/*", Public: true},
		guard.Rule{Method: http.MethodPost, Path: "/v1/identities", Public: true},
		guard.Rule{Method: http.MethodPut, Path: "/v1/identities/*", Roles: admins},
		guard.Rule{Method: http.MethodDelete, Path: "/v1/identities/*", Roles: admins},
	)
}

// Handler assembles the middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.guardTable().Middleware(h)
	h = guard.TrustAssertions(a.sealSecret)(h)
	h = fault.Recover(h)
	h = httpx.MaxBodyBytes(h, 1<<20)
	h = httpx.SecurityHeaders(h)
	h = httpx.RateLimit(h, a.rateBurst, a.ratePerSec)
	h = httpx.LoggingJSON(h)
	h = httpx.RequestID(h)
	return obs.Instrument(serviceName, h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodFault(allowed string) *fault.Fault {
	return fault.New(http.StatusMethodNotAllowed, "method not allowed", "use "+allowed)
}
