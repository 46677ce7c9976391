// Package resolver turns a request path or event payload into a
// concrete forge object plus a visibility decision.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pagure/eventrelay/internal/store"
)

var (
	ErrMalformedPath   = errors.New("resolver: malformed path")
	ErrProjectNotFound = errors.New("resolver: project not found")
	ErrObjectNotFound  = errors.New("resolver: object not found")
	ErrFeatureDisabled = errors.New("resolver: feature disabled on project")
	ErrAccessDenied    = errors.New("resolver: access denied")
)

// Store is the slice of the database the resolver needs.
type Store interface {
	GetProject(ctx context.Context, name, namespace, username string) (*store.Project, error)
	GetIssue(ctx context.Context, projectID, id int64) (*store.Issue, error)
	GetPullRequest(ctx context.Context, projectID, id int64) (*store.PullRequest, error)
}

// Target is a resolved object: the project it lives in, its kind and
// the immutable uid its broker channel derives from.
type Target struct {
	Project *store.Project
	Type    ObjectType
	UID     string
}

type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve parses path, loads the addressed object and applies the
// visibility rules. All failures map onto the package's sentinel
// errors.
func (r *Resolver) Resolve(ctx context.Context, path string) (*Target, error) {
	ref, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	project, err := r.store.GetProject(ctx, ref.Repo, ref.Namespace, ref.Username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrProjectNotFound, ref.Repo)
	}
	if err != nil {
		return nil, err
	}

	switch ref.Type {
	case ObjectIssue:
		return r.resolveIssue(ctx, project, ref.ObjectID)
	case ObjectPullRequest:
		return r.resolvePullRequest(ctx, project, ref.ObjectID)
	}

	// ParsePath only emits known types; anything else is a bug.
	return nil, fmt.Errorf("%w: object type %q", ErrMalformedPath, ref.Type)
}

func (r *Resolver) resolveIssue(ctx context.Context, project *store.Project, objID string) (*Target, error) {
	if !project.Settings.IssueTrackerEnabled() {
		return nil, fmt.Errorf("%w: no issue tracker on %s", ErrFeatureDisabled, project.Fullname())
	}

	id, err := strconv.ParseInt(objID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: issue %q", ErrObjectNotFound, objID)
	}

	issue, err := r.store.GetIssue(ctx, project.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: issue %d", ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	// No viewer identity is available inside the relay, so a private
	// issue is always denied rather than partially authorized.
	if issue.Private {
		return nil, fmt.Errorf("%w: issue %d is private", ErrAccessDenied, id)
	}

	return &Target{Project: project, Type: ObjectIssue, UID: issue.UID}, nil
}

func (r *Resolver) resolvePullRequest(ctx context.Context, project *store.Project, objID string) (*Target, error) {
	if !project.Settings.PullRequestsEnabled() {
		return nil, fmt.Errorf("%w: no pull-request tracker on %s", ErrFeatureDisabled, project.Fullname())
	}

	id, err := strconv.ParseInt(objID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: pull-request %q", ErrObjectNotFound, objID)
	}

	pr, err := r.store.GetPullRequest(ctx, project.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: pull-request %d", ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return &Target{Project: project, Type: ObjectPullRequest, UID: pr.UID}, nil
}
