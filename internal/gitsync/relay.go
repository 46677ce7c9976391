// Package gitsync reconciles ticket and pull-request documents stored
// in a project's metadata git repository back into the database after a
// push, so the git hook never blocks on the upload.
package gitsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pagure/eventrelay/internal/broker"
	"github.com/pagure/eventrelay/internal/notify"
	"github.com/pagure/eventrelay/internal/store"
)

const receiveWindow = 30 * time.Second

// DataType is the closed set of document kinds a sync event can carry.
type DataType string

const (
	DataTicket      DataType = "ticket"
	DataPullRequest DataType = "pull-request"
)

func parseDataType(name string) (DataType, error) {
	switch DataType(name) {
	case DataTicket, DataPullRequest:
		return DataType(name), nil
	}
	return "", fmt.Errorf("gitsync: invalid data type %q", name)
}

// Git is the external collaborator: list the files a commit touched and
// read a file's content at the head of the repository.
type Git interface {
	ChangedFiles(repoPath, commit string) ([]string, error)
	FileContent(repoPath, filename string) ([]byte, error)
}

type Store interface {
	GetProject(ctx context.Context, name, namespace, username string) (*store.Project, error)
	GetUser(ctx context.Context, username string) (*store.User, error)
	UpsertIssueFromJSON(ctx context.Context, projectID int64, uid string, data []byte) error
	UpsertPullRequestFromJSON(ctx context.Context, projectID int64, uid string, data []byte) error
}

type Subscription interface {
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type Relay struct {
	store Store
	git   Git
	mail  notify.Mailer
	log   *logrus.Entry
}

func New(s Store, git Git, mail notify.Mailer, log *logrus.Entry) *Relay {
	return &Relay{store: s, git: git, mail: mail, log: log}
}

// Run consumes the loadjson channel until the broker connection is
// lost.
func (r *Relay) Run(ctx context.Context, sub Subscription) error {
	for {
		payload, err := sub.Next(ctx, receiveWindow)
		if errors.Is(err, broker.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}

		r.Handle(ctx, payload)
	}
}

// syncEvent is published by the post-receive git hook.
type syncEvent struct {
	Project struct {
		Name      string          `json:"name"`
		Namespace string          `json:"namespace"`
		Parent    json.RawMessage `json:"parent"`
		Username  struct {
			Name string `json:"name"`
		} `json:"username"`
	} `json:"project"`
	Abspath  string   `json:"abspath"`
	Commits  []string `json:"commits"`
	DataType string   `json:"data_type"`
	Agent    string   `json:"agent"`
}

// isFork reports whether the event's project is a fork; only forks
// carry a meaningful owner.
func (e *syncEvent) isFork() bool {
	return len(e.Project.Parent) > 0 && string(e.Project.Parent) != "null"
}

// Handle processes one sync event: compute the union of files the
// pushed commits touched, then reconcile each file into the database.
// One file's failure aborts the files after it, but everything already
// written stays written, and the agent gets a per-file report either
// way.
func (r *Relay) Handle(ctx context.Context, payload []byte) {
	var event syncEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.log.Warnf("undecodable sync event: %v", err)
		return
	}

	dataType, err := parseDataType(event.DataType)
	if err != nil {
		r.log.Warn(err)
		return
	}

	username := ""
	if event.isFork() {
		username = event.Project.Username.Name
	}

	project, err := r.store.GetProject(ctx, event.Project.Name, event.Project.Namespace, username)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Info("no project found")
		return
	}
	if err != nil {
		r.log.Errorf("project lookup: %v", err)
		return
	}

	r.log.Infof("%s: processing %d commits in %s", project.Fullname(), len(event.Commits), event.Abspath)

	files, err := r.filesToLoad(project.Fullname(), event.Commits, event.Abspath)
	if err != nil {
		r.log.Errorf("%s: listing changed files: %v", project.Fullname(), err)
		return
	}

	report := r.loadFiles(ctx, project, dataType, event.Abspath, files)

	r.sendReport(ctx, project, event.Agent, report)
}

// filesToLoad walks the commit range oldest first and unions the files
// each commit touched.
func (r *Relay) filesToLoad(title string, commits []string, abspath string) ([]string, error) {
	ordered := make([]string, len(commits))
	for i, commit := range commits {
		ordered[len(commits)-1-i] = commit
	}

	seen := map[string]struct{}{}
	for idx, commit := range ordered {
		if idx%100 == 0 {
			r.log.Infof("loading files changed in commits for %s: %d/%d", title, idx, len(ordered))
		}

		files, err := r.git.ChangedFiles(abspath, commit)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if file = strings.TrimSpace(file); file != "" {
				seen[file] = struct{}{}
			}
		}
	}

	files := make([]string, 0, len(seen))
	for file := range seen {
		files = append(files, file)
	}
	sort.Strings(files)

	return files, nil
}

// loadFiles reconciles each file and returns the per-file report
// lines. A parse failure only abandons that file; a database failure
// aborts the remainder of the batch.
func (r *Relay) loadFiles(ctx context.Context, project *store.Project, dataType DataType, abspath string, files []string) []string {
	report := make([]string, 0, len(files))

	for idx, filename := range files {
		r.log.Infof("loading: %s -- %d/%d", filename, idx+1, len(files))
		line := fmt.Sprintf("Loading: %s -- %d/%d", filename, idx+1, len(files))

		// Attachments live under files/ and are not documents.
		if strings.HasPrefix(filename, "files/") {
			report = append(report, line+" ... ... skipped (attachment)")
			continue
		}

		content, err := r.git.FileContent(abspath, filename)
		if err != nil {
			report = append(report, line+" ... ... FAILED (read: "+err.Error()+")")
			continue
		}

		if !json.Valid(content) {
			report = append(report, line+" ... ... FAILED (invalid JSON)")
			continue
		}

		switch dataType {
		case DataTicket:
			err = r.store.UpsertIssueFromJSON(ctx, project.ID, filename, content)
		case DataPullRequest:
			err = r.store.UpsertPullRequestFromJSON(ctx, project.ID, filename, content)
		}
		if err != nil {
			r.log.Errorf("loading %s: %v", filename, err)
			report = append(report, line+" ... ... FAILED\n"+err.Error())
			// Rows written so far stay written; the rest of the batch
			// is abandoned.
			break
		}

		report = append(report, line+" ... ... Done")
	}

	return report
}

// sendReport mails the per-file outcome to the agent who triggered the
// sync. A missing agent is itself a reported failure, not a crash.
func (r *Relay) sendReport(ctx context.Context, project *store.Project, agent string, report []string) {
	if agent == "" {
		r.log.Error("no agent found, not sending the sync report")
		return
	}

	user, err := r.store.GetUser(ctx, agent)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Errorf("could not find user %s", agent)
		return
	}
	if err != nil {
		r.log.Errorf("user lookup: %v", err)
		return
	}

	r.log.Infof("emailing results for %s to %s", project.Fullname(), agent)

	if err := r.mail.Send(ctx, user.DefaultEmail, "Issue import report", strings.Join(report, "\n")); err != nil {
		r.log.Errorf("sending report to %s: %v", user.DefaultEmail, err)
	}
}
