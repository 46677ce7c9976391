package resolver

import (
	"fmt"
	"strings"
)

// ObjectType is the closed set of object kinds addressable through a
// stream path. Unknown tokens are rejected at the boundary.
type ObjectType string

const (
	ObjectIssue       ObjectType = "issue"
	ObjectPullRequest ObjectType = "pull-request"
)

func knownObjectType(token string) bool {
	switch ObjectType(token) {
	case ObjectIssue, ObjectPullRequest:
		return true
	}
	return false
}

// PathRef is the parsed form of a stream request path:
// /[fork/<owner>/][<namespace>/]<project>/<object-type>/<object-id>
type PathRef struct {
	Username  string
	Namespace string
	Repo      string
	Type      ObjectType
	ObjectID  string
}

// ParsePath extracts the owner, namespace, project, object type and
// object id from a request path. It scans for the last occurrence of a
// known object-type token, not the first, because an owner, namespace
// or project segment may coincidentally equal "issue" or
// "pull-request".
func ParsePath(path string) (*PathRef, error) {
	// The path starts with a /, so drop the leading empty segment.
	items := strings.Split(path, "/")[1:]

	objIdx := -1
	for i, item := range items {
		if knownObjectType(item) {
			objIdx = i
		}
	}
	if objIdx == -1 {
		return nil, fmt.Errorf("%w: no known object type in %q", ErrMalformedPath, path)
	}
	if objIdx+1 >= len(items) || objIdx < 1 {
		return nil, fmt.Errorf("%w: no project or object id in %q", ErrMalformedPath, path)
	}

	ref := &PathRef{
		Repo:     items[objIdx-1],
		Type:     ObjectType(items[objIdx]),
		ObjectID: items[objIdx+1],
	}
	items = items[:objIdx-1]

	if len(items) > 0 && items[0] == "fork" {
		if len(items) < 2 {
			return nil, fmt.Errorf("%w: fork with no owner in %q", ErrMalformedPath, path)
		}
		ref.Username = items[1]
		items = items[2:]
	}

	if len(items) > 0 {
		ref.Namespace = items[0]
		items = items[1:]
	}

	// Anything still left is an ambiguous path.
	if len(items) > 0 {
		return nil, fmt.Errorf("%w: extra segments in %q", ErrMalformedPath, path)
	}

	return ref, nil
}
