package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"lendstock.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

const uniqueViolation = "23505"

// PGStore implements Store using PostgreSQL. Username uniqueness among
// active identities is enforced by a partial unique index, so the
// database serializes concurrent registrations.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, id *Identity) error {
	if id.ID == "" {
		id.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into identities(id, username, password_hash, role, active)
		 values($1,$2,$3,$4,true)
		 returning created_at, updated_at`,
		id.ID, id.Username, id.PasswordHash, string(id.Role),
	)
	if err := row.Scan(&id.CreatedAt, &id.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	id.Active = true
	return nil
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, password_hash, role, active, created_at, updated_at
		 from identities where username=$1 and active`, username)
	return scanIdentity(row)
}

func (s *PGStore) Update(ctx context.Context, username string, upd Update) (*Identity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`select id, username, password_hash, role, active, created_at, updated_at
		 from identities where username=$1 and active for update`, username)
	id, err := scanIdentity(row)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil {
		id.Username = strings.TrimSpace(*upd.Username)
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

	row = tx.QueryRowContext(ctx,
		`update identities set username=$2, password_hash=$3, role=$4, updated_at=now()
		 where id=$1 returning updated_at`,
		id.ID, id.Username, id.PasswordHash, string(id.Role),
	)
	if err := row.Scan(&id.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return id, nil
}

func (s *PGStore) Deactivate(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set active=false, updated_at=now()
		 where username=$1 and active`, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var (
		id   Identity
		role string
	)
	err := row.Scan(&id.ID, &id.Username, &id.PasswordHash, &role, &id.Active, &id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return nil, ErrInvalidInput
	}
	id.Role = parsed
	return &id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
