package fault

import (
	"errors"
	"net/http"

	"lendstock.org/internal/identity"
	"lendstock.org/internal/obs"
)

// HandlerFunc is a business handler that reports failure by returning
// an error instead of writing its own error response.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// Handler adapts a HandlerFunc into http.Handler, translating returned
// errors into the envelope. Identity sentinel errors map to their
// conventional statuses; unrecognized errors become 500 and are logged
// with request context so access failures stay auditable.
func Handler(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		translate(w, r, err)
	})
}

// Recover converts a panicking handler chain into the generic 500
// envelope instead of a dropped connection.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				obs.LogRequest(map[string]any{
					"level": "error",
					"msg":   "handler_panic",
					"path":  r.URL.Path,
					"panic": v,
				})
				Write(w, http.StatusInternalServerError, "internal error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func translate(w http.ResponseWriter, r *http.Request, err error) {
	var f *Fault
	switch {
	case errors.As(err, &f):
		Write(w, f.Status, f.Message, f.Details)
	case errors.Is(err, identity.ErrInvalidInput):
		Write(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, identity.ErrUnauthorized):
		Write(w, http.StatusUnauthorized, "authentication required", "")
	case errors.Is(err, identity.ErrNotFound):
		Write(w, http.StatusNotFound, "resource not found", "")
	case errors.Is(err, identity.ErrConflict):
		Write(w, http.StatusConflict, "resource conflict", "")
	default:
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "unhandled_error",
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		Write(w, http.StatusInternalServerError, "internal error", "")
	}
}
