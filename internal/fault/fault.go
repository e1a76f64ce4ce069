// Package fault is the single place where internal failures become the
// client-visible error contract. Every service writes the same JSON
// envelope {message, timestamp, details}; the HTTP status carries the
// semantic. Handlers return errors instead of formatting responses.
package fault

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Fault is a domain failure carrying an explicit HTTP status.
type Fault struct {
	Status  int
	Message string
	Details string
}

func (f *Fault) Error() string {
	if f.Details == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Message, f.Details)
}

// New constructs a fault with an explicit status code.
func New(status int, message, details string) *Fault {
	return &Fault{Status: status, Message: message, Details: details}
}

func Invalid(details string) *Fault {
	return New(http.StatusBadRequest, "validation failed", details)
}

func Unauthenticated(details string) *Fault {
	return New(http.StatusUnauthorized, "authentication required", details)
}

func Forbidden(details string) *Fault {
	return New(http.StatusForbidden, "access denied", details)
}

func NotFound(details string) *Fault {
	return New(http.StatusNotFound, "resource not found", details)
}

func Conflict(details string) *Fault {
	return New(http.StatusConflict, "resource conflict", details)
}

// Upstream marks a dependency failure that must not pass as success.
func Upstream(details string) *Fault {
	return New(http.StatusServiceUnavailable, "upstream dependency unavailable", details)
}

type envelope struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Details   string `json:"details"`
}

// Write emits the error envelope with the given status.
func Write(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   details,
	})
}

// WriteError translates err into the envelope. Faults keep their
// carried status; anything else becomes a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	var f *Fault
	if errors.As(err, &f) {
		Write(w, f.Status, f.Message, f.Details)
		return
	}
	Write(w, http.StatusInternalServerError, "internal error", "")
}
