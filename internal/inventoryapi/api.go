// Package inventoryapi is a representative internal service living
// behind the edge gate. It holds the equipment catalogue and trusts
// the forwarded assertion for every authorization decision; it never
// sees or verifies a raw token.
package inventoryapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"lendstock.org/internal/fault"
	"lendstock.org/internal/guard"
	"lendstock.org/internal/httpx"
	"lendstock.org/internal/identity"
	"lendstock.org/internal/obs"
)

const serviceName = "inventory"

// API is the inventory service HTTP layer.
type API struct {
	router     *mux.Router
	store      *ItemStore
	sealSecret []byte
	version    string
}

// New wires the inventory routes.
func New(store *ItemStore, sealSecret []byte, version string) *API {
	a := &API{
		router:     mux.NewRouter(),
		store:      store,
		sealSecret: sealSecret,
		version:    version,
	}

	a.router.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	a.router.Handle("/v1/items", fault.Handler(a.listItems)).Methods(http.MethodGet)
	a.router.Handle("/v1/items", fault.Handler(a.createItem)).Methods(http.MethodPost)
	a.router.Handle("/v1/items/{id}", fault.Handler(a.getItem)).Methods(http.MethodGet)
	a.router.Handle("/v1/items/{id}", fault.Handler(a.updateItem)).Methods(http.MethodPut)
	a.router.Handle("/v1/items/{id}", fault.Handler(a.deleteItem)).Methods(http.MethodDelete)

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fault.Write(w, http.StatusNotFound, "resource not found", "")
	})
	a.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fault.Write(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	return a
}

// guardTable: every authenticated role may browse the catalogue;
// mutations are restricted to the administrative roles.
func (a *API) guardTable() *guard.Table {
	everyone := []identity.Role{
		identity.RoleSuperAdmin, identity.RoleAdmin,
		identity.RoleAssistant, identity.RoleUser,
	}
	admins := []identity.Role{identity.RoleAdmin, identity.RoleSuperAdmin}
	return guard.NewTable(
		guard.Rule{Method: "*", Path: "/healthz", Public: true},
		guard.Rule{Method: http.MethodGet, Path: "/metrics", Public: true},
		guard.Rule{Method: http.MethodGet, Path: "/v1/items", Roles: everyone},
		guard.Rule{Method: http.MethodGet, Path: "/v1/items/*", Roles: everyone},
		guard.Rule{Method: http.MethodPost, Path: "/v1/items", Roles: admins},
		guard.Rule{Method: http.MethodPut, Path: "/v1/items/*", Roles: admins},
		guard.Rule{Method: http.MethodDelete, Path: "/v1/items/*", Roles: admins},
	)
}

// Handler assembles the middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.guardTable().Middleware(h)
	h = guard.TrustAssertions(a.sealSecret)(h)
	h = fault.Recover(h)
	h = httpx.MaxBodyBytes(h, 1<<20)
	h = httpx.SecurityHeaders(h)
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

type createItemRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.store.List()})
	return nil
}

func (a *API) getItem(w http.ResponseWriter, r *http.Request) error {
	item, err := a.store.Get(mux.Vars(r)["id"])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, item)
	return nil
}

func (a *API) createItem(w http.ResponseWriter, r *http.Request) error {
	var req createItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return fault.Invalid(err.Error())
	}
	principal, _ := guard.PrincipalFromContext(r.Context())
	item, err := a.store.Create(req.Name, req.Category, req.Quantity, principal.Username)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, item)
	return nil
}

func (a *API) updateItem(w http.ResponseWriter, r *http.Request) error {
	var upd ItemUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		return fault.Invalid(err.Error())
	}
	item, err := a.store.Update(mux.Vars(r)["id"], upd)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, item)
	return nil
}

func (a *API) deleteItem(w http.ResponseWriter, r *http.Request) error {
	if err := a.store.Delete(mux.Vars(r)["id"]); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

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
