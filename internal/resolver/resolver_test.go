package resolver_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagure/eventrelay/internal/resolver"
	"github.com/pagure/eventrelay/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Init(context.Background()))

	return s
}

func boolPtr(b bool) *bool { return &b }

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project := &store.Project{Name: "test", Settings: store.Settings{}}
	require.NoError(t, s.CreateProject(ctx, project))

	forked := &store.Project{Name: "test", Username: "alice", IsFork: true}
	require.NoError(t, s.CreateProject(ctx, forked))

	require.NoError(t, s.CreateIssue(ctx, &store.Issue{
		ID: 26, UID: "936efdbcae974a54a44e8f210bbc6d15", ProjectID: project.ID, Title: "bug",
	}))
	require.NoError(t, s.CreateIssue(ctx, &store.Issue{
		ID: 27, UID: "7d9f4a3e1bc2486b9f61f53c40b7a1aa", ProjectID: project.ID, Private: true,
	}))
	require.NoError(t, s.CreatePullRequest(ctx, &store.PullRequest{
		ID: 4, UID: "3f6c2d88a0f14be2a61f1c6f55a3dd0b", ProjectID: forked.ID, BranchFrom: "feature",
	}))

	r := resolver.New(s)

	t.Run("issue", func(t *testing.T) {
		target, err := r.Resolve(ctx, "/test/issue/26")
		require.NoError(t, err)
		require.Equal(t, resolver.ObjectIssue, target.Type)
		require.Equal(t, "936efdbcae974a54a44e8f210bbc6d15", target.UID)
		require.Equal(t, project.ID, target.Project.ID)
	})

	t.Run("fork pull request", func(t *testing.T) {
		target, err := r.Resolve(ctx, "/fork/alice/test/pull-request/4")
		require.NoError(t, err)
		require.Equal(t, resolver.ObjectPullRequest, target.Type)
		require.Equal(t, "3f6c2d88a0f14be2a61f1c6f55a3dd0b", target.UID)
	})

	t.Run("private issue is always denied", func(t *testing.T) {
		_, err := r.Resolve(ctx, "/test/issue/27")
		require.ErrorIs(t, err, resolver.ErrAccessDenied)
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := r.Resolve(ctx, "/nope/issue/1")
		require.ErrorIs(t, err, resolver.ErrProjectNotFound)
	})

	t.Run("unknown issue", func(t *testing.T) {
		_, err := r.Resolve(ctx, "/test/issue/999")
		require.ErrorIs(t, err, resolver.ErrObjectNotFound)
	})

	t.Run("non-numeric object id", func(t *testing.T) {
		_, err := r.Resolve(ctx, "/test/issue/abc")
		require.ErrorIs(t, err, resolver.ErrObjectNotFound)
	})

	t.Run("malformed path", func(t *testing.T) {
		_, err := r.Resolve(ctx, "/test/commits/2")
		require.ErrorIs(t, err, resolver.ErrMalformedPath)
	})
}

func TestResolveDisabledFeatures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project := &store.Project{
		Name: "locked",
		Settings: store.Settings{
			IssueTracker: boolPtr(false),
			PullRequests: boolPtr(false),
		},
	}
	require.NoError(t, s.CreateProject(ctx, project))

	// The issue exists but the tracker is off; the feature check wins.
	require.NoError(t, s.CreateIssue(ctx, &store.Issue{
		ID: 1, UID: "0aa2df21b6a4454f9cbd0d1a0ccbe9ff", ProjectID: project.ID,
	}))

	r := resolver.New(s)

	_, err := r.Resolve(ctx, "/locked/issue/1")
	require.ErrorIs(t, err, resolver.ErrFeatureDisabled)

	_, err = r.Resolve(ctx, "/locked/pull-request/1")
	require.ErrorIs(t, err, resolver.ErrFeatureDisabled)
}
