package guard

import (
	"net/http"
	"strings"

	"lendstock.org/internal/fault"
	"lendstock.org/internal/identity"
	"lendstock.org/internal/obs"
)

// Rule maps a method and path pattern to the role set allowed through.
// Method "*" matches any method. A path pattern is either an exact path
// or a prefix ending in "*". Public rules admit unauthenticated
// requests.
type Rule struct {
	Method string
	Path   string
	Roles  []identity.Role
	Public bool
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "*" && !strings.EqualFold(r.Method, method) {
		return false
	}
	if strings.HasSuffix(r.Path, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(r.Path, "*"))
	}
	return r.Path == path
}

func (r Rule) admits(role identity.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Table is an ordered route guard: the first matching rule wins and
// unmatched requests are denied.
type Table struct {
	rules []Rule
}

// NewTable builds a route guard table. Rule order is authorization
// order.
func NewTable(rules ...Rule) *Table {
	return &Table{rules: rules}
}

// Middleware enforces the table against the security context
// established by TrustAssertions.
func (t *Table) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, ok := t.match(r.Method, r.URL.Path)
		if !ok {
			t.deny(w, r, "no route rule")
			return
		}
		if rule.Public {
			next.ServeHTTP(w, r)
			return
		}
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.deny(w, r, "unauthenticated")
			return
		}
		if !rule.admits(principal.Role) {
			t.deny(w, r, "role "+string(principal.Role))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Table) match(method, path string) (Rule, bool) {
	for _, rule := range t.rules {
		if rule.matches(method, path) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (t *Table) deny(w http.ResponseWriter, r *http.Request, reason string) {
	entry := map[string]any{
		"level":  "warn",
		"msg":    "access_denied",
		"method": r.Method,
		"path":   r.URL.Path,
		"reason": reason,
	}
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		entry["principal"] = principal.Username
	}
	obs.LogRequest(entry)
	fault.Write(w, http.StatusForbidden, "access denied", "")
}
