package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

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

func TestProjectFullname(t *testing.T) {
	tests := []struct {
		name    string
		project store.Project
		want    string
	}{
		{"plain", store.Project{Name: "test"}, "test"},
		{"namespaced", store.Project{Name: "test", Namespace: "ns"}, "ns/test"},
		{"fork", store.Project{Name: "test", Username: "alice", IsFork: true}, "forks/alice/test"},
		{"namespaced fork", store.Project{Name: "test", Namespace: "ns", Username: "alice", IsFork: true}, "forks/alice/ns/test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.project.Fullname())
			require.Equal(t, tt.want+".git", tt.project.Path())
		})
	}
}

func TestSettingsDefaults(t *testing.T) {
	var s store.Settings
	require.True(t, s.IssueTrackerEnabled(), "absent means enabled")
	require.True(t, s.PullRequestsEnabled(), "absent means enabled")

	s = store.Settings{IssueTracker: boolPtr(false), PullRequests: boolPtr(false)}
	require.False(t, s.IssueTrackerEnabled())
	require.False(t, s.PullRequestsEnabled())
}

func TestProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project := &store.Project{
		Name:      "test",
		Namespace: "ns",
		Settings:  store.Settings{Webhooks: "https://hooks.example.org/a\nhttps://hooks.example.org/b"},
		HookToken: "secret",
		CIURL:     "https://jenkins.example.org/job/test/",
		CIToken:   "build-token",
	}
	require.NoError(t, s.CreateProject(ctx, project))
	require.NotZero(t, project.ID)

	got, err := s.GetProject(ctx, "test", "ns", "")
	require.NoError(t, err)
	require.Equal(t, project.Settings.Webhooks, got.Settings.Webhooks)
	require.Equal(t, "secret", got.HookToken)

	byID, err := s.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, got, byID)

	_, err = s.GetProject(ctx, "test", "", "")
	require.ErrorIs(t, err, store.ErrNotFound, "namespace is part of the key")
}

func TestUpsertIssueFromJSONIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project := &store.Project{Name: "test"}
	require.NoError(t, s.CreateProject(ctx, project))

	uid := "936efdbcae974a54a44e8f210bbc6d15"
	doc := []byte(`{"id": 26, "title": "crash on start", "status": "Open", "private": false}`)

	require.NoError(t, s.UpsertIssueFromJSON(ctx, project.ID, uid, doc))
	require.NoError(t, s.UpsertIssueFromJSON(ctx, project.ID, uid, doc))

	issue, err := s.GetIssue(ctx, project.ID, 26)
	require.NoError(t, err)
	require.Equal(t, uid, issue.UID)
	require.Equal(t, "crash on start", issue.Title)

	// A later document for the same uid updates in place.
	updated := []byte(`{"id": 26, "title": "crash on start", "status": "Closed"}`)
	require.NoError(t, s.UpsertIssueFromJSON(ctx, project.ID, uid, updated))

	issue, err = s.GetIssue(ctx, project.ID, 26)
	require.NoError(t, err)
	require.Equal(t, "Closed", issue.Status)

	require.Error(t, s.UpsertIssueFromJSON(ctx, project.ID, uid, []byte("not json")))
}

func TestPullRequestLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project := &store.Project{Name: "test"}
	require.NoError(t, s.CreateProject(ctx, project))

	uid := "3f6c2d88a0f14be2a61f1c6f55a3dd0b"
	require.NoError(t, s.CreatePullRequest(ctx, &store.PullRequest{
		ID: 4, UID: uid, ProjectID: project.ID, BranchFrom: "feature",
	}))

	byUID, err := s.GetPullRequestByUID(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, int64(4), byUID.ID)

	byID, err := s.GetPullRequest(ctx, project.ID, 4)
	require.NoError(t, err)
	require.Equal(t, uid, byID.UID)

	_, err = s.GetPullRequestByUID(ctx, "0000000000000000000000000000dead")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateUser(ctx, &store.User{Username: "pingou", DefaultEmail: "pingou@example.org"}))

	user, err := s.GetUser(ctx, "pingou")
	require.NoError(t, err)
	require.Equal(t, "pingou@example.org", user.DefaultEmail)

	_, err = s.GetUser(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}
