package inventoryapi

import (
	"sort"
	"strings"
	"sync"
	"time"

	"lendstock.org/internal/identity"
	"lendstock.org/internal/ids"
)

// Item is a piece of lendable equipment. Owner records the principal
// that registered it; deactivated owners keep their items because
// identities are never hard-deleted.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Quantity  int       `json:"quantity"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemUpdate carries partial mutations; nil fields are left untouched.
type ItemUpdate struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Quantity *int    `json:"quantity"`
}

// ItemStore is an in-memory inventory keyed by item id.
type ItemStore struct {
	mu    sync.RWMutex
	items map[string]Item
	now   func() time.Time
}

// NewItemStore returns an empty store.
func NewItemStore() *ItemStore {
	return &ItemStore{
		items: make(map[string]Item),
		now:   time.Now,
	}
}

// Create validates and stores a new item.
func (s *ItemStore) Create(name, category string, quantity int, owner string) (Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, identity.ErrInvalidInput
	}
	if quantity < 0 {
		return Item{}, identity.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	item := Item{
		ID:        ids.New(),
		Name:      name,
		Category:  strings.TrimSpace(category),
		Quantity:  quantity,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[item.ID] = item
	return item, nil
}

// Get returns the item or identity.ErrNotFound.
func (s *ItemStore) Get(id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, identity.ErrNotFound
	}
	return item, nil
}

// List returns all items ordered by creation time.
func (s *ItemStore) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update applies a partial mutation.
func (s *ItemStore) Update(id string, upd ItemUpdate) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, identity.ErrNotFound
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Item{}, identity.ErrInvalidInput
		}
		item.Name = name
	}
	if upd.Category != nil {
		item.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.Quantity != nil {
		if *upd.Quantity < 0 {
			return Item{}, identity.ErrInvalidInput
		}
		item.Quantity = *upd.Quantity
	}
	item.UpdatedAt = s.now().UTC()
	s.items[id] = item
	return item, nil
}

// Delete removes the item or reports identity.ErrNotFound.
func (s *ItemStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return identity.ErrNotFound
	}
	delete(s.items, id)
	return nil
}
