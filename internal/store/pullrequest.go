package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PullRequest struct {
	ID            int64
	UID           string
	ProjectID     int64
	ProjectFromID sql.NullInt64
	BranchFrom    string
	Title         string
	Status        string
}

const pullRequestColumns = `id, uid, project_id, project_from_id, branch_from, title, status`

// GetPullRequest loads a pull request by its public id, scoped to a
// project.
func (s *Store) GetPullRequest(ctx context.Context, projectID, id int64) (*PullRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pullRequestColumns+`
		FROM pull_requests
		WHERE project_id = ? AND id = ?
	`, projectID, id)

	return scanPullRequest(row)
}

// GetPullRequestByUID loads a pull request by its immutable uid, the
// key CI events carry.
func (s *Store) GetPullRequestByUID(ctx context.Context, uid string) (*PullRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pullRequestColumns+`
		FROM pull_requests
		WHERE uid = ?
	`, uid)

	return scanPullRequest(row)
}

func (s *Store) CreatePullRequest(ctx context.Context, pr *PullRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pull_requests (id, uid, project_id, project_from_id, branch_from, title, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pr.ID, pr.UID, pr.ProjectID, pr.ProjectFromID, pr.BranchFrom, pr.Title, pr.Status)

	return err
}

func scanPullRequest(row *sql.Row) (*PullRequest, error) {
	var pr PullRequest

	err := row.Scan(
		&pr.ID,
		&pr.UID,
		&pr.ProjectID,
		&pr.ProjectFromID,
		&pr.BranchFrom,
		&pr.Title,
		&pr.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &pr, nil
}

type pullRequestDocument struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	BranchFrom string `json:"branch_from"`
}

// UpsertPullRequestFromJSON reconciles a pull-request document read
// from git into the pull_requests table, keyed by filename-as-uid.
func (s *Store) UpsertPullRequestFromJSON(ctx context.Context, projectID int64, uid string, data []byte) error {
	var doc pullRequestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("store: pull-request document %s: %w", uid, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pull_requests (id, uid, project_id, branch_from, title, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			id = excluded.id,
			branch_from = excluded.branch_from,
			title = excluded.title,
			status = excluded.status
	`, doc.ID, uid, projectID, doc.BranchFrom, doc.Title, defaultStatus(doc.Status))

	return err
}
