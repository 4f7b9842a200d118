package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"firewatch.org/internal/auth"
)

var _ auth.UserStore = (*Store)(nil)

const userColumns = `id, username, email, password_hash, is_admin, created_at`

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	err := s.db.QueryRowContext(ctx, `
		insert into users (username, email, password_hash, is_admin)
		values ($1, $2, $3, $4)
		returning id, created_at
	`, u.Username, strings.ToLower(u.Email), u.PasswordHash, u.IsAdmin).Scan(&u.ID, &u.CreatedAt)
	if isCode(err, pgErrUniqueViolation) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.findUser(ctx, `select `+userColumns+` from users where id = $1`, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email)
}

func (s *Store) findUser(ctx context.Context, query string, arg any) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
