package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type Issue struct {
	ID        int64
	UID       string
	ProjectID int64
	Title     string
	Content   string
	Status    string
	Private   bool
}

// GetIssue loads an issue by its public id, scoped to a project so an
// id belonging to another project never resolves.
func (s *Store) GetIssue(ctx context.Context, projectID, id int64) (*Issue, error) {
	var issue Issue

	err := s.db.QueryRowContext(ctx, `
		SELECT id, uid, project_id, title, content, status, private
		FROM issues
		WHERE project_id = ? AND id = ?
	`, projectID, id).Scan(
		&issue.ID,
		&issue.UID,
		&issue.ProjectID,
		&issue.Title,
		&issue.Content,
		&issue.Status,
		&issue.Private,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &issue, nil
}

func (s *Store) CreateIssue(ctx context.Context, issue *Issue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (id, uid, project_id, title, content, status, private)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, issue.ID, issue.UID, issue.ProjectID, issue.Title, issue.Content, issue.Status, issue.Private)

	return err
}

// issueDocument is the JSON shape the forge serializes tickets as in
// its metadata git repositories.
type issueDocument struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
	Private bool   `json:"private"`
}

// UpsertIssueFromJSON reconciles a ticket document read from git into
// the issues table, keyed by the document's filename-as-uid. The
// operation is idempotent for a given uid and document.
func (s *Store) UpsertIssueFromJSON(ctx context.Context, projectID int64, uid string, data []byte) error {
	var doc issueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("store: issue document %s: %w", uid, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (id, uid, project_id, title, content, status, private)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			id = excluded.id,
			title = excluded.title,
			content = excluded.content,
			status = excluded.status,
			private = excluded.private
	`, doc.ID, uid, projectID, doc.Title, doc.Content, defaultStatus(doc.Status), doc.Private)

	return err
}

func defaultStatus(status string) string {
	if status == "" {
		return "Open"
	}
	return status
}
