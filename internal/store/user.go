package store

import (
	"context"
	"database/sql"
	"errors"
)

type User struct {
	Username     string
	DefaultEmail string
}

func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	var user User

	err := s.db.QueryRowContext(ctx, `
		SELECT username, default_email
		FROM users
		WHERE username = ?
	`, username).Scan(&user.Username, &user.DefaultEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, default_email) VALUES (?, ?)
	`, user.Username, user.DefaultEmail)

	return err
}
