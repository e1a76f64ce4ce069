// Package config loads per-service configuration from the environment.
// Every service shares the token and assertion secrets; everything else
// is service-specific.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Identity configures the identity service.
type Identity struct {
	Addr            string
	DatabaseURL     string
	TokenSecret     string
	AssertionSecret string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
}

// LoadIdentity reads identity service configuration.
func LoadIdentity() (Identity, error) {
	cfg := Identity{
		Addr:            getenv("IDENTITY_ADDR", ":8081"),
		DatabaseURL:     os.Getenv("IDENTITY_PG_DSN"),
		TokenSecret:     os.Getenv("LENDSTOCK_TOKEN_SECRET"),
		AssertionSecret: os.Getenv("LENDSTOCK_ASSERTION_SECRET"),
		AccessTTL:       getdur("IDENTITY_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      getdur("IDENTITY_REFRESH_TTL", 7*24*time.Hour),
	}
	if cfg.TokenSecret == "" {
		return Identity{}, errors.New("config: LENDSTOCK_TOKEN_SECRET is required")
	}
	return cfg, nil
}

// EdgeRoute maps a path prefix to an internal upstream.
type EdgeRoute struct {
	Prefix   string
	Upstream *url.URL
}

// Edge configures the edge gate.
type Edge struct {
	Addr            string
	IdentityURL     *url.URL
	AssertionSecret string
	ValidateTimeout time.Duration
	RateBurst       int
	RatePerSec      int
	Routes          []EdgeRoute
}

// LoadEdge reads edge gate configuration. EDGE_ROUTES is a
// comma-separated list of prefix=url pairs, for example
// "/v1/items=http://inventory:8082,/v1/identities=http://identity:8081".
func LoadEdge() (Edge, error) {
	cfg := Edge{
		Addr:            getenv("EDGE_ADDR", ":8080"),
		AssertionSecret: os.Getenv("LENDSTOCK_ASSERTION_SECRET"),
		ValidateTimeout: getdur("EDGE_VALIDATE_TIMEOUT", 3*time.Second),
		RateBurst:       20,
		RatePerSec:      10,
	}

	rawIdentity := os.Getenv("EDGE_IDENTITY_URL")
	if rawIdentity == "" {
		return Edge{}, errors.New("config: EDGE_IDENTITY_URL is required")
	}
	identityURL, err := url.Parse(rawIdentity)
	if err != nil {
		return Edge{}, fmt.Errorf("config: parse EDGE_IDENTITY_URL: %w", err)
	}
	cfg.IdentityURL = identityURL

	routes, err := ParseRoutes(os.Getenv("EDGE_ROUTES"))
	if err != nil {
		return Edge{}, err
	}
	if len(routes) == 0 {
		return Edge{}, errors.New("config: EDGE_ROUTES is required")
	}
	cfg.Routes = routes
	return cfg, nil
}

// ParseRoutes parses the EDGE_ROUTES syntax.
func ParseRoutes(raw string) ([]EdgeRoute, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var routes []EdgeRoute
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		prefix, target, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("config: invalid route %q, want prefix=url", pair)
		}
		prefix = strings.TrimSpace(prefix)
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("config: route prefix %q must start with /", prefix)
		}
		upstream, err := url.Parse(strings.TrimSpace(target))
		if err != nil {
			return nil, fmt.Errorf("config: parse upstream for %q: %w", prefix, err)
		}
		if upstream.Scheme == "" || upstream.Host == "" {
			return nil, fmt.Errorf("config: upstream for %q must be an absolute URL", prefix)
		}
		routes = append(routes, EdgeRoute{Prefix: prefix, Upstream: upstream})
	}
	return routes, nil
}

// Inventory configures the inventory service.
type Inventory struct {
	Addr            string
	AssertionSecret string
}

// LoadInventory reads inventory service configuration.
func LoadInventory() Inventory {
	return Inventory{
		Addr:            getenv("INVENTORY_ADDR", ":8082"),
		AssertionSecret: os.Getenv("LENDSTOCK_ASSERTION_SECRET"),
	}
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
