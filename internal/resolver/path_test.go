package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want PathRef
	}{
		{
			name: "plain issue",
			path: "/test/issue/26",
			want: PathRef{Repo: "test", Type: ObjectIssue, ObjectID: "26"},
		},
		{
			name: "namespaced issue",
			path: "/ns/test/issue/26",
			want: PathRef{Namespace: "ns", Repo: "test", Type: ObjectIssue, ObjectID: "26"},
		},
		{
			name: "fork pull request",
			path: "/fork/alice/test/pull-request/4",
			want: PathRef{Username: "alice", Repo: "test", Type: ObjectPullRequest, ObjectID: "4"},
		},
		{
			name: "fork with namespace",
			path: "/fork/alice/ns/test/pull-request/4",
			want: PathRef{Username: "alice", Namespace: "ns", Repo: "test", Type: ObjectPullRequest, ObjectID: "4"},
		},
		{
			name: "project named like an object type",
			path: "/issue/issue/3",
			want: PathRef{Repo: "issue", Type: ObjectIssue, ObjectID: "3"},
		},
		{
			name: "namespace colliding with object token",
			path: "/issue/test/issue/3",
			want: PathRef{Namespace: "issue", Repo: "test", Type: ObjectIssue, ObjectID: "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParsePath(tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.want, *ref)
		})
	}
}

func TestParsePathMalformed(t *testing.T) {
	paths := []string{
		"/",
		"/test",
		"/test/26",
		"/test/commits/26",
		"/issue",
		"/issue/26",
		"/test/issue",
		"/fork/alice/extra/ns/test/issue/26",
		"/one/two/three/test/pull-request/4",
	}

	for _, path := range paths {
		_, err := ParsePath(path)
		require.ErrorIs(t, err, ErrMalformedPath, "path %q", path)
	}
}
