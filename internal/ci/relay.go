// Package ci turns a pull-request event into a single outbound CI
// build trigger.
package ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/pagure/eventrelay/internal/broker"
	"github.com/pagure/eventrelay/internal/store"
)

const receiveWindow = 30 * time.Second

// Backend is the closed set of CI backends a project can hook up.
type Backend string

const BackendJenkins Backend = "jenkins"

func parseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case BackendJenkins:
		return BackendJenkins, nil
	}
	return "", fmt.Errorf("ci: unsupported backend %q", name)
}

type Store interface {
	GetPullRequestByUID(ctx context.Context, uid string) (*store.PullRequest, error)
	GetProjectByID(ctx context.Context, id int64) (*store.Project, error)
}

type Subscription interface {
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Trigger issues the actual build request; jenkins.go implements it.
type Trigger interface {
	Build(ctx context.Context, baseURL, job, token string, params map[string]string) error
}

type RelayOptions struct {
	Store   Store
	Trigger Trigger
	// GitURL is the public clone base the CI system fetches from.
	GitURL string
}

type Relay struct {
	store   Store
	trigger Trigger
	gitURL  string
	log     *logrus.Entry
}

func New(opts RelayOptions, log *logrus.Entry) *Relay {
	if opts.Trigger == nil {
		opts.Trigger = NewJenkinsTrigger()
	}
	return &Relay{
		store:   opts.Store,
		trigger: opts.Trigger,
		gitURL:  strings.TrimRight(opts.GitURL, "/"),
		log:     log,
	}
}

// Run consumes the ci channel until the broker connection is lost.
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

// prSnapshot is the embedded pull-request state carried by a ci event.
type prSnapshot struct {
	ID         int64  `mapstructure:"id"`
	UID        string `mapstructure:"uid"`
	BranchFrom string `mapstructure:"branch_from"`
}

type ciEvent struct {
	PR     map[string]any `json:"pr"`
	CIType string         `json:"ci_type"`
}

// Handle processes one ci event. Unknown backends and unresolvable
// pull requests are logged and skipped, never fatal.
func (r *Relay) Handle(ctx context.Context, payload []byte) {
	var event ciEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.log.Warnf("undecodable ci event: %v", err)
		return
	}

	var snapshot prSnapshot
	if err := mapstructure.Decode(event.PR, &snapshot); err != nil {
		r.log.Warnf("undecodable pr snapshot: %v", err)
		return
	}

	backend, err := parseBackend(event.CIType)
	if err != nil {
		r.log.Warn(err)
		return
	}

	r.log.Infof("looking for pr: %s", snapshot.UID)

	pr, err := r.store.GetPullRequestByUID(ctx, snapshot.UID)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warnf("no request could be found for uid %s", snapshot.UID)
		return
	}
	if err != nil {
		r.log.Errorf("pull request lookup: %v", err)
		return
	}

	project, err := r.store.GetProjectByID(ctx, pr.ProjectID)
	if err != nil {
		r.log.Errorf("project lookup: %v", err)
		return
	}

	projectFrom := project
	if pr.ProjectFromID.Valid {
		projectFrom, err = r.store.GetProjectByID(ctx, pr.ProjectFromID.Int64)
		if err != nil {
			r.log.Errorf("source project lookup: %v", err)
			return
		}
	}

	r.log.Infof("trigger on %s PR #%d from %s: %s",
		project.Fullname(), snapshot.ID, projectFrom.Fullname(), snapshot.BranchFrom)

	if backend == BackendJenkins {
		if err := r.triggerJenkins(ctx, project, projectFrom, snapshot); err != nil {
			r.log.Errorf("build trigger: %v", err)
			return
		}
		r.log.Info("build triggered")
	}
}

func (r *Relay) triggerJenkins(ctx context.Context, project, projectFrom *store.Project, snapshot prSnapshot) error {
	ciURL := strings.TrimRight(project.CIURL, "/")
	if ciURL == "" {
		return fmt.Errorf("no ci hook configured on %s", project.Fullname())
	}

	// The configured URL points at the job; the trigger needs the
	// jenkins base and the job name separately.
	base, job, found := strings.Cut(ciURL, "/job/")
	if !found {
		return fmt.Errorf("malformed jenkins url %q", ciURL)
	}
	job, _, _ = strings.Cut(job, "/")

	params := map[string]string{
		"cause":  fmt.Sprintf("%d", snapshot.ID),
		"REPO":   r.gitURL + "/" + projectFrom.Path(),
		"BRANCH": snapshot.BranchFrom,
	}

	return r.trigger.Build(ctx, base, job, project.CIToken, params)
}
