// Package gitcheck guards live sync runs against clobbering uncommitted
// work in a destination that is part of a git repository.
package gitcheck

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// ErrNotARepository is returned when the path is not inside a git
// repository. Callers may downgrade it to a warning.
var ErrNotARepository = errors.New("not inside a git repository")

// NotCleanError reports uncommitted changes in a repository working tree
type NotCleanError struct {
	// Repo is the worktree root
	Repo string

	// Files are the dirty paths relative to the worktree root, sorted
	Files []string
}

func (e *NotCleanError) Error() string {
	const show = 5
	files := e.Files
	suffix := ""
	if len(files) > show {
		suffix = fmt.Sprintf(" and %d more", len(files)-show)
		files = files[:show]
	}
	return fmt.Sprintf("repository %s has uncommitted changes: %s%s",
		e.Repo, strings.Join(files, ", "), suffix)
}

// CheckClean verifies that the repository enclosing path has no
// uncommitted changes. Untracked files are tolerated unless strict is
// set. Returns ErrNotARepository when path is not inside a repository
// and *NotCleanError when the working tree is dirty.
func CheckClean(path string, strict bool) error {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		// A bare repository has no working tree to dirty.
		if errors.Is(err, git.ErrIsBareRepository) {
			return nil
		}
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}

	var dirty []string
	for file, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		if !strict && st.Staging == git.Untracked && st.Worktree == git.Untracked {
			continue
		}
		dirty = append(dirty, file)
	}
	if len(dirty) == 0 {
		return nil
	}
	sort.Strings(dirty)

	root := path
	if wt.Filesystem != nil {
		root = wt.Filesystem.Root()
	}
	return &NotCleanError{Repo: root, Files: dirty}
}
