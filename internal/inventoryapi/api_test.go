package inventoryapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lendstock.org/internal/assertion"
	"lendstock.org/internal/identity"
)

const testSeal = "inventory-test-seal"

func newTestServer(t *testing.T) (*httptest.Server, *ItemStore) {
	t.Helper()
	store := NewItemStore()
	srv := httptest.NewServer(New(store, []byte(testSeal), "test").Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, body string, as *assertion.Assertion) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		assertion.Attach(req.Header, *as, []byte(testSeal))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAnonymousListRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/v1/items", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous list, got %d", resp.StatusCode)
	}
}

func TestUserCanListButNotMutate(t *testing.T) {
	srv, store := newTestServer(t)
	if _, err := store.Create("oscilloscope", "electronics", 3, "admin"); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	user := &assertion.Assertion{Username: "bob", Role: identity.RoleUser}

	resp := do(t, http.MethodGet, srv.URL+"/v1/items", "", user)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing as user, got %d", resp.StatusCode)
	}
	var listing struct {
		Items []Item `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Items) != 1 || listing.Items[0].Name != "oscilloscope" {
		t.Fatalf("unexpected listing %+v", listing.Items)
	}

	resp = do(t, http.MethodPost, srv.URL+"/v1/items", `{"name":"drill","quantity":1}`, user)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 creating as user, got %d", resp.StatusCode)
	}
}

func TestAdminFullLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	admin := &assertion.Assertion{Username: "alice", Role: identity.RoleAdmin}

	resp := do(t, http.MethodPost, srv.URL+"/v1/items", `{"name":"projector","category":"av","quantity":2}`, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created Item
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created item: %v", err)
	}
	if created.ID == "" || created.Owner != "alice" {
		t.Fatalf("unexpected created item %+v", created)
	}

	resp = do(t, http.MethodPut, srv.URL+"/v1/items/"+created.ID, `{"quantity":5}`, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 updating, got %d", resp.StatusCode)
	}
	var updated Item
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated item: %v", err)
	}
	if updated.Quantity != 5 || updated.Name != "projector" {
		t.Fatalf("unexpected update %+v", updated)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/v1/items/"+created.ID, "", admin)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 deleting, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/items/"+created.ID, "", admin)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestTamperedSealTreatedAsAnonymous(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/items", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(assertion.HeaderUsername, "mallory")
	req.Header.Set(assertion.HeaderRole, "super_admin")
	req.Header.Set(assertion.HeaderSeal, "forged")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for forged seal, got %d", resp.StatusCode)
	}
}

func TestValidationFaultEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	admin := &assertion.Assertion{Username: "alice", Role: identity.RoleAdmin}

	resp := do(t, http.MethodPost, srv.URL+"/v1/items", `{"name":"","quantity":-1}`, admin)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid item, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if body["message"] == "" || body["timestamp"] == "" {
		t.Fatalf("expected envelope fields, got %v", body)
	}
}

func TestCreateRejectsTrailingData(t *testing.T) {
	srv, _ := newTestServer(t)
	admin := &assertion.Assertion{Username: "alice", Role: identity.RoleAdmin}

	resp := do(t, http.MethodPost, srv.URL+"/v1/items",
		`{"name":"drill","quantity":1}{"name":"second"}`, admin)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for trailing data, got %d", resp.StatusCode)
	}
}

func TestHealthzPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
}
