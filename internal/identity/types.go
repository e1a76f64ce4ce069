package identity

import (
	"strings"
	"time"
)

// Role is the closed set of roles an identity can hold. Unknown strings
// never become roles: ParseRole is the only way in.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleAssistant  Role = "assistant"
	RoleUser       Role = "user"
)

// Roles lists every defined role, most privileged first.
var Roles = []Role{RoleSuperAdmin, RoleAdmin, RoleAssistant, RoleUser}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, true
	}
	return "", false
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleAssistant, RoleUser:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Identity is the durable account record. It is never hard-deleted:
// deactivation flips Active so resources created by the identity keep
// a resolvable owner.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Update carries optional field changes for an identity. Nil means
// leave unchanged.
type Update struct {
	Username *string
	Password *string
	Role     *Role
}
