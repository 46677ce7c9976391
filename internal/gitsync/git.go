package gitsync

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// LocalGit reads repositories on the local filesystem, the same disk
// the git hooks write to.
type LocalGit struct{}

// ChangedFiles tree-diffs a commit against its parent, or against the
// empty tree for a root commit, and returns the paths it touched.
func (LocalGit) ChangedFiles(repoPath, commit string) ([]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("gitsync: open %s: %w", repoPath, err)
	}

	c, err := repo.CommitObject(plumbing.NewHash(commit))
	if err != nil {
		return nil, fmt.Errorf("gitsync: commit %s: %w", commit, err)
	}

	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		files = append(files, name)
	}

	return files, nil
}

// FileContent reads a file at the head of the repository.
func (LocalGit) FileContent(repoPath, filename string) ([]byte, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("gitsync: open %s: %w", repoPath, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, err
	}

	c, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, err
	}

	file, err := c.File(filename)
	if err != nil {
		return nil, fmt.Errorf("gitsync: %s at HEAD: %w", filename, err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, err
	}

	return []byte(content), nil
}
