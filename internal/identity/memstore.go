package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"lendstock.org/internal/ids"
)

// MemStore is an in-memory Store for tests and local development. It
// enforces the same active-username uniqueness rule as the Postgres
// partial index, so concurrent registrations and renames behave
// identically.
type MemStore struct {
	mu  sync.Mutex
	ids map[string]*Identity
	now func() time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		ids: make(map[string]*Identity),
		now: time.Now,
	}
}

func (m *MemStore) Create(_ context.Context, id *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeHolder(id.Username) != nil {
		return ErrConflict
	}
	if id.ID == "" {
		id.ID = ids.New()
	}
	now := m.now().UTC()
	if id.CreatedAt.IsZero() {
		id.CreatedAt = now
	}
	id.UpdatedAt = now
	clone := *id
	m.ids[id.ID] = &clone
	return nil
}

func (m *MemStore) FindByUsername(_ context.Context, username string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.activeHolder(username)
	if id == nil {
		return nil, ErrNotFound
	}
	clone := *id
	return &clone, nil
}

func (m *MemStore) Update(_ context.Context, username string, upd Update) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.activeHolder(username)
	if id == nil {
		return nil, ErrNotFound
	}
	if upd.Username != nil {
		next := strings.TrimSpace(*upd.Username)
		if holder := m.activeHolder(next); holder != nil && holder.ID != id.ID {
			return nil, ErrConflict
		}
		id.Username = next
	}
	if upd.Password != nil {
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		id.PasswordHash = hash
	}
	if upd.Role != nil {
		id.Role = *upd.Role
	}
	id.UpdatedAt = m.now().UTC()
	clone := *id
	return &clone, nil
}

func (m *MemStore) Deactivate(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.activeHolder(username)
	if id == nil {
		return ErrNotFound
	}
	id.Active = false
	id.UpdatedAt = m.now().UTC()
	return nil
}

// activeHolder returns the active identity holding username, if any.
// Callers must hold m.mu.
func (m *MemStore) activeHolder(username string) *Identity {
	for _, id := range m.ids {
		if id.Active && id.Username == username {
			return id
		}
	}
	return nil
}
