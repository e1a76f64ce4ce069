package identity

import "context"

// Store describes persistence operations required by the identity
// service. Implementations must map duplicate active usernames to
// ErrConflict so concurrent registrations of the same name yield
// exactly one success.
type Store interface {
	Create(ctx context.Context, id *Identity) error
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	Update(ctx context.Context, username string, upd Update) (*Identity, error)
	Deactivate(ctx context.Context, username string) error
}
