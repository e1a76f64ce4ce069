// Package assertion defines the identity handoff between the edge gate
// and internal services: two plain headers carrying the verified
// username and role. The assertion is deliberately non-cryptographic;
// the edge is assumed to be the only network path into internal
// services. When that isolation cannot be guaranteed, a shared-secret
// HMAC seal over the two fields can be enabled; services then discard
// any assertion whose seal does not verify.
package assertion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"lendstock.org/internal/identity"
)

// Header names for the forwarded assertion. http.Header canonicalizes
// them, so X-auth-username and X-Auth-Username are the same field.
const (
	HeaderUsername = "X-Auth-Username"
	HeaderRole     = "X-Auth-Role"
	HeaderSeal     = "X-Auth-Seal"
)

// Assertion is the edge-verified identity claim trusted verbatim by
// internal services.
type Assertion struct {
	Username string
	Role     identity.Role
}

// Attach writes the assertion headers, sealing them when a secret is
// configured.
func Attach(h http.Header, a Assertion, secret []byte) {
	h.Set(HeaderUsername, a.Username)
	h.Set(HeaderRole, string(a.Role))
	if len(secret) > 0 {
		h.Set(HeaderSeal, seal(a.Username, string(a.Role), secret))
	}
}

// Strip removes every assertion header. The edge calls this on inbound
// client requests so externally supplied headers can never masquerade
// as a verified identity.
func Strip(h http.Header) {
	h.Del(HeaderUsername)
	h.Del(HeaderRole)
	h.Del(HeaderSeal)
}

// FromHeader parses an assertion from the forwarded headers. Returns
// false when either field is missing, the role is unknown, or the seal
// is required and does not verify.
func FromHeader(h http.Header, secret []byte) (Assertion, bool) {
	username := strings.TrimSpace(h.Get(HeaderUsername))
	role, ok := identity.ParseRole(h.Get(HeaderRole))
	if username == "" || !ok {
		return Assertion{}, false
	}
	if len(secret) > 0 {
		expected := seal(username, string(role), secret)
		if !hmac.Equal([]byte(expected), []byte(h.Get(HeaderSeal))) {
			return Assertion{}, false
		}
	}
	return Assertion{Username: username, Role: role}, true
}

func seal(username, role string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(username))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(role))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
