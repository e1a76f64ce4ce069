package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"lendstock.org/internal/audit"
	"lendstock.org/internal/fault"
	"lendstock.org/internal/guard"
	"lendstock.org/internal/identity"
	"lendstock.org/internal/token"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Username         string    `json:"username"`
	Role             string    `json:"role"`
}

type accessTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type validateResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateIdentityRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodFault(http.MethodPost)
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return fault.Invalid(err.Error())
	}

	id, err := a.identities.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			_ = audit.LogEvent(r.Context(), "identity.login.rejected", map[string]any{
				"username": strings.TrimSpace(req.Username),
			})
			return fault.Unauthenticated("invalid credentials")
		}
		return err
	}

	access, accessExp, err := a.codec.IssueAccess(id.Username, string(id.Role))
	if err != nil {
		return err
	}
	refresh, refreshExp, err := a.codec.IssueRefresh(id.Username, string(id.Role))
	if err != nil {
		return err
	}

	_ = audit.LogEvent(r.Context(), "identity.login", map[string]any{
		"username": id.Username,
		"role":     string(id.Role),
	})
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Username:         id.Username,
		Role:             string(id.Role),
	})
	return nil
}

// handleValidate verifies an access token for the edge gate and
// resolves the subject's current role live, so deactivation and role
// changes take effect while previously issued tokens are still fresh.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodFault(http.MethodGet)
	}
	raw := strings.TrimPrefix(r.URL.Path, "/validate/")
	claims, err := a.codec.Verify(raw, token.KindAccess)
	if err != nil {
		return fault.Unauthenticated("invalid token")
	}
	id, err := a.identities.Lookup(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return fault.Unauthenticated("invalid token")
		}
		return err
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Username: id.Username,
		Role:     string(id.Role),
	})
	return nil
}

// handleRefresh mints a new access token from a refresh token. The
// subject must still resolve to an active identity.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodFault(http.MethodGet)
	}
	raw := strings.TrimPrefix(r.URL.Path, "/refresh/")
	claims, err := a.codec.Verify(raw, token.KindRefresh)
	if err != nil {
		return fault.Unauthenticated("invalid token")
	}
	id, err := a.identities.Lookup(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return fault.Unauthenticated("invalid token")
		}
		return err
	}

	access, exp, err := a.codec.IssueAccess(id.Username, string(id.Role))
	if err != nil {
		return err
	}
	_ = audit.LogEvent(r.Context(), "identity.token.refreshed", map[string]any{
		"username": id.Username,
	})
	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresAt:   exp,
	})
	return nil
}

// handleIdentities registers a new identity. Self-registration is open
// but always yields the user role; only an administrator principal may
// assign anything stronger.
func (a *API) handleIdentities(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodFault(http.MethodPost)
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return fault.Invalid(err.Error())
	}

	role := identity.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, ok := identity.ParseRole(req.Role)
		if !ok {
			return fault.Invalid("unknown role " + req.Role)
		}
		if parsed != identity.RoleUser && !callerIsAdmin(r) {
			return fault.Forbidden("role assignment requires an administrator")
		}
		role = parsed
	}

	id, err := a.identities.Register(r.Context(), req.Username, req.Password, role)
	if err != nil {
		return err
	}

	_ = audit.LogEvent(r.Context(), "identity.registered", map[string]any{
		"username": id.Username,
		"role":     string(id.Role),
	})
	w.Header().Set("Location", "/v1/identities/"+id.Username)
	writeJSON(w, http.StatusCreated, id)
	return nil
}

func (a *API) handleIdentityResource(w http.ResponseWriter, r *http.Request) error {
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/identities/"), "/")
	if username == "" || strings.Contains(username, "/") {
		return fault.NotFound("")
	}

	switch r.Method {
	case http.MethodPut:
		return a.updateIdentity(w, r, username)
	case http.MethodDelete:
		return a.deactivateIdentity(w, r, username)
	default:
		return methodFault(http.MethodPut + ", " + http.MethodDelete)
	}
}

func (a *API) updateIdentity(w http.ResponseWriter, r *http.Request, username string) error {
	var req updateIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return fault.Invalid(err.Error())
	}

	upd := identity.Update{
		Username: req.Username,
		Password: req.Password,
	}
	if req.Role != nil {
		parsed, ok := identity.ParseRole(*req.Role)
		if !ok {
			return fault.Invalid("unknown role " + *req.Role)
		}
		upd.Role = &parsed
	}

	id, err := a.identities.Update(r.Context(), username, upd)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(r.Context(), "identity.updated", map[string]any{
		"username": id.Username,
		"role":     string(id.Role),
	})
	writeJSON(w, http.StatusOK, id)
	return nil
}

func (a *API) deactivateIdentity(w http.ResponseWriter, r *http.Request, username string) error {
	if err := a.identities.Deactivate(r.Context(), username); err != nil {
		return err
	}
	_ = audit.LogEvent(r.Context(), "identity.deactivated", map[string]any{
		"username": username,
	})
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func callerIsAdmin(r *http.Request) bool {
	principal, ok := guard.PrincipalFromContext(r.Context())
	if !ok {
		return false
	}
	return principal.Role == identity.RoleAdmin || principal.Role == identity.RoleSuperAdmin
}
