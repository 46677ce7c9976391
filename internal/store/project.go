package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type Project struct {
	ID        int64
	Name      string
	Namespace string
	Username  string
	IsFork    bool
	Settings  Settings
	HookToken string
	CIURL     string
	CIToken   string
}

// Settings is the per-project configuration blob. Absent booleans mean
// "enabled", matching the forge's defaults.
type Settings struct {
	IssueTracker *bool  `json:"issue_tracker,omitempty"`
	PullRequests *bool  `json:"pull_requests,omitempty"`
	Webhooks     string `json:"Web-hooks,omitempty"`
}

func (s Settings) IssueTrackerEnabled() bool {
	return s.IssueTracker == nil || *s.IssueTracker
}

func (s Settings) PullRequestsEnabled() bool {
	return s.PullRequests == nil || *s.PullRequests
}

// Fullname renders the canonical project name: [forks/<user>/][<ns>/]<name>.
func (p *Project) Fullname() string {
	name := p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + name
	}
	if p.IsFork {
		name = "forks/" + p.Username + "/" + name
	}
	return name
}

// Path is the location of the project's git repository relative to the
// git root.
func (p *Project) Path() string {
	return p.Fullname() + ".git"
}

const projectColumns = `id, name, namespace, username, is_fork, settings, hook_token, ci_url, ci_token`

// GetProject looks a project up by name, namespace and fork owner.
// Pass empty strings for "no namespace" and "not a fork".
func (s *Store) GetProject(ctx context.Context, name, namespace, username string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE name = ? AND namespace = ? AND username = ?
	`, name, namespace, username)

	return scanProject(row)
}

func (s *Store) GetProjectByID(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id = ?
	`, id)

	return scanProject(row)
}

// CreateProject inserts a project row, mostly useful for tests and
// local setups; the web application owns project creation.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("store: marshal settings: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, namespace, username, is_fork, settings, hook_token, ci_url, ci_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Namespace, p.Username, p.IsFork, string(settings), p.HookToken, p.CIURL, p.CIToken)
	if err != nil {
		return err
	}

	p.ID, err = res.LastInsertId()
	return err
}

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var settings string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Namespace,
		&p.Username,
		&p.IsFork,
		&settings,
		&p.HookToken,
		&p.CIURL,
		&p.CIToken,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(settings), &p.Settings); err != nil {
		return nil, fmt.Errorf("store: settings for project %d: %w", p.ID, err)
	}

	return &p, nil
}
