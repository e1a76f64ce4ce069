// Package token implements stateless signing and verification of the
// bearer tokens exchanged between clients, the edge gate, and the
// identity service. Tokens are HS256 JWTs carrying an explicit kind
// claim so a refresh token can never pass where an access token is
// expected. Expiry is exclusive: a token is rejected once the current
// time is past its exp claim.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "lendstock"

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Kind distinguishes the two token flavors minted by the codec.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalidToken covers every verification failure: bad signature,
// expired, malformed, wrong kind, wrong issuer. Callers must not be
// able to distinguish the cases.
var ErrInvalidToken = errors.New("token: invalid token")

// Claims are the verified contents of a token.
type Claims struct {
	Role string `json:"role"`
	Kind Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a single process-wide secret.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec) error

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) error {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			return errors.New("token: issuer must not be empty")
		}
		c.issuer = issuer
		return nil
	}
}

// WithAccessTTL configures the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(c *Codec) error {
		if ttl > 0 {
			c.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(c *Codec) error {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec constructs a Codec. The secret must not be empty.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is not configured")
	}
	c := &Codec{
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Issue signs a token of the given kind for subject and role. A
// non-positive ttl falls back to the kind's default lifetime.
func (c *Codec) Issue(subject, role string, kind Kind, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, errors.New("token: unknown token kind")
	}
	if ttl <= 0 {
		if kind == KindRefresh {
			ttl = c.refreshTTL
		} else {
			ttl = c.accessTTL
		}
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role: strings.TrimSpace(role),
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueAccess mints an access token with the default access lifetime.
func (c *Codec) IssueAccess(subject, role string) (string, time.Time, error) {
	return c.Issue(subject, role, KindAccess, 0)
}

// IssueRefresh mints a refresh token with the default refresh lifetime.
func (c *Codec) IssueRefresh(subject, role string) (string, time.Time, error) {
	return c.Issue(subject, role, KindRefresh, 0)
}

// Verify checks signature, lifetime, issuer and kind. Any failure is
// reported as ErrInvalidToken.
func (c *Codec) Verify(raw string, kind Kind) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	if !claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
