// Package store is the slice of the forge's relational schema the relay
// daemons read and write: projects with their settings, issues, pull
// requests and users.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the tables the relays depend on. The web application
// owns the full schema and its migrations; this subset exists so the
// daemons (and their tests) can run against a fresh database.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	namespace  TEXT NOT NULL DEFAULT '',
	username   TEXT NOT NULL DEFAULT '',
	is_fork    INTEGER NOT NULL DEFAULT 0,
	settings   TEXT NOT NULL DEFAULT '{}',
	hook_token TEXT NOT NULL DEFAULT '',
	ci_url     TEXT NOT NULL DEFAULT '',
	ci_token   TEXT NOT NULL DEFAULT '',
	UNIQUE (name, namespace, username)
);

CREATE TABLE IF NOT EXISTS issues (
	id         INTEGER NOT NULL,
	uid        TEXT PRIMARY KEY,
	project_id INTEGER NOT NULL REFERENCES projects (id),
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'Open',
	private    INTEGER NOT NULL DEFAULT 0,
	UNIQUE (project_id, id)
);

CREATE TABLE IF NOT EXISTS pull_requests (
	id              INTEGER NOT NULL,
	uid             TEXT PRIMARY KEY,
	project_id      INTEGER NOT NULL REFERENCES projects (id),
	project_from_id INTEGER REFERENCES projects (id),
	branch_from     TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'Open',
	UNIQUE (project_id, id)
);

CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	default_email TEXT NOT NULL DEFAULT ''
);
`
