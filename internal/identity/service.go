// Package identity owns the durable account records of the platform
// and every credential decision made about them: authentication,
// lookup for edge validation, registration, updates, and soft
// deactivation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const minPasswordLength = 8

// Service provides identity lifecycle and credential verification on
// top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate verifies a username/password pair against the active
// identity record. Unknown usernames, inactive identities, and wrong
// passwords all collapse into ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrUnauthorized
	}
	id, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !id.Active {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(id.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return id, nil
}

// Lookup resolves the active identity for a username. Used during
// refresh re-issuance and by the edge gate's live role resolution, so
// a deactivated identity fails here even while its tokens are unexpired.
func (s *Service) Lookup(ctx context.Context, username string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrNotFound
	}
	id, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !id.Active {
		return nil, ErrNotFound
	}
	return id, nil
}

// Register creates a new active identity. Username uniqueness among
// active identities is enforced by the store; a duplicate surfaces as
// ErrConflict.
func (s *Service) Register(ctx context.Context, username, password string, role Role) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	id := &Identity{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.store.Create(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Update applies partial changes to an active identity.
func (s *Service) Update(ctx context.Context, username string, upd Update) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if upd.Username != nil && strings.TrimSpace(*upd.Username) == "" {
		return nil, fmt.Errorf("%w: username must not be blank", ErrInvalidInput)
	}
	if upd.Password != nil && len(*upd.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *upd.Role)
	}
	return s.store.Update(ctx, username, upd)
}

// Deactivate flips the active flag. The record survives so resources
// owned by the identity keep referential history.
func (s *Service) Deactivate(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.Deactivate(ctx, username)
}
