// Package vcs commits the data directory after a dump so every sync
// pass leaves a reviewable revision behind.
package vcs

import (
	"errors"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/elastic-stacker/stacker/faults"
)

const defaultCommitMessage = "stacker: update resource dumps"

// CommitAll stages and commits every change under dir. It returns false
// without committing when dir is not a git repository or the worktree
// is clean.
func CommitAll(dir string, message string) (bool, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return false, nil
		}
		return false, faults.NewTypedError(faults.InternalError, "failed to open git repository", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, faults.NewTypedError(faults.InternalError, "failed to open git worktree", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return false, faults.NewTypedError(faults.InternalError, "failed to inspect git worktree status", err)
	}
	if status.IsClean() {
		return false, nil
	}

	if err := worktree.AddGlob("."); err != nil {
		return false, faults.NewTypedError(faults.InternalError, "failed to stage git changes", err)
	}

	commitMessage := strings.TrimSpace(message)
	if commitMessage == "" {
		commitMessage = defaultCommitMessage
	}

	if _, err := worktree.Commit(commitMessage, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "stacker",
			Email: "stacker@local",
			When:  time.Now(),
		},
	}); err != nil {
		return false, faults.NewTypedError(faults.InternalError, "failed to commit git changes", err)
	}

	return true, nil
}
