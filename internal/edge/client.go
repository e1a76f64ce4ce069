package edge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lendstock.org/internal/assertion"
	"lendstock.org/internal/identity"
)

// Validation sentinels. ErrUnauthenticated means the identity service
// answered and rejected the token; ErrUpstream means it could not be
// asked at all. The gate fails closed on the latter with a status the
// caller can tell apart from plain rejection.
var (
	ErrUnauthenticated = errors.New("edge: token rejected")
	ErrUpstream        = errors.New("edge: identity service unavailable")
)

// TokenValidator resolves a bearer token to a verified assertion.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (assertion.Assertion, error)
}

// ValidateClient asks the identity service to verify a token and
// resolve the subject's current role. Every call is bounded by the
// configured timeout so a stalled identity service cannot stall the
// proxy hot path.
type ValidateClient struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
}

// NewValidateClient builds a validator against the identity service
// base URL.
func NewValidateClient(base *url.URL, timeout time.Duration) *ValidateClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ValidateClient{
		base:    base,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type validateResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Validate calls GET /validate/{token}. A 2xx answer carries the live
// username and role; 4xx means the token was rejected; anything else,
// including transport failures, is an upstream fault.
func (c *ValidateClient) Validate(ctx context.Context, token string) (assertion.Assertion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + "/validate/" + url.PathEscape(token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return assertion.Assertion{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return assertion.Assertion{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return assertion.Assertion{}, ErrUnauthenticated
	default:
		return assertion.Assertion{}, fmt.Errorf("%w: validate returned %d", ErrUpstream, resp.StatusCode)
	}

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return assertion.Assertion{}, fmt.Errorf("%w: decode validate response: %v", ErrUpstream, err)
	}
	role, ok := identity.ParseRole(body.Role)
	if body.Username == "" || !ok {
		return assertion.Assertion{}, fmt.Errorf("%w: validate response missing identity", ErrUpstream)
	}
	return assertion.Assertion{Username: body.Username, Role: role}, nil
}
