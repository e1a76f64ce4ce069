package fault

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lendstock.org/internal/identity"
)

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Message == "" {
		t.Fatal("expected message in envelope")
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Fatalf("timestamp is not RFC3339: %q", env.Timestamp)
	}
	return env
}

func TestHandlerTranslatesFault(t *testing.T) {
	h := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return NotFound("item 42 does not exist")
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/items/42", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if env.Details != "item 42 does not exist" {
		t.Fatalf("unexpected details: %q", env.Details)
	}
}

func TestHandlerTranslatesIdentityErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: username is required", identity.ErrInvalidInput), http.StatusBadRequest},
		{identity.ErrUnauthorized, http.StatusUnauthorized},
		{identity.ErrNotFound, http.StatusNotFound},
		{identity.ErrConflict, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := Handler(func(w http.ResponseWriter, r *http.Request) error {
			return tc.err
		})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rr.Code)
		}
		decodeEnvelope(t, rr)
	}
}

func TestHandlerSuccessWritesNothingExtra(t *testing.T) {
	h := Handler(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if env.Message != "internal error" {
		t.Fatalf("unexpected message: %q", env.Message)
	}
}
