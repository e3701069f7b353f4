package scan

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// gitTreeFiles lists the files tracked at HEAD, relative to root.
// root may be a subdirectory of the worktree; entries outside it are
// dropped and the rest re-relativized.
func gitTreeFiles(root string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, root)
		}

		return nil, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load HEAD commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load HEAD tree: %w", err)
	}

	prefix, err := treePrefix(repo, root)
	if err != nil {
		return nil, err
	}

	var files []string

	err = tree.Files().ForEach(func(f *object.File) error {
		name := f.Name
		if prefix != "" {
			var ok bool

			name, ok = strings.CutPrefix(name, prefix)
			if !ok {
				return nil
			}
		}

		files = append(files, name)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate HEAD tree: %w", err)
	}

	return files, nil
}

// treePrefix returns the slash-terminated tree path of root inside the
// worktree, or "" when root is the worktree itself.
func treePrefix(repo *git.Repository, root string) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	rel, err := filepath.Rel(wt.Filesystem.Root(), root)
	if err != nil {
		return "", fmt.Errorf("relativize scan root: %w", err)
	}

	if rel == "." {
		return "", nil
	}

	return filepath.ToSlash(rel) + "/", nil
}
