package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrCorruptHistory indicates the structural integrity walk found an object
// that does not resolve.
var ErrCorruptHistory = errors.New("corrupt history")

// CheckIntegrity walks the branch from its tip and verifies that every
// reachable commit, its tree, and all its parents resolve in the object
// database. It is a structural consistency check, not a content audit.
func (r *Repository) CheckIntegrity(branch string) error {
	tip, err := r.BranchTip(branch)
	if err != nil {
		return err
	}

	tipOid, _ := ParseOid(tip)

	odb, odbErr := r.repo.Odb()
	if odbErr != nil {
		return fmt.Errorf("open odb: %w", odbErr)
	}
	defer odb.Free()

	walk, walkErr := r.repo.Walk()
	if walkErr != nil {
		return fmt.Errorf("create revwalk: %w", walkErr)
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTopological)

	pushErr := walk.Push(tipOid)
	if pushErr != nil {
		return fmt.Errorf("push branch tip: %w", pushErr)
	}

	oid := new(git2go.Oid)

	for {
		nextErr := walk.Next(oid)
		if nextErr != nil {
			if git2go.IsErrorCode(nextErr, git2go.ErrorCodeIterOver) {
				break
			}

			return fmt.Errorf("%w: %v", ErrCorruptHistory, nextErr)
		}

		commit, lookupErr := r.repo.LookupCommit(oid)
		if lookupErr != nil {
			return fmt.Errorf("%w: commit %s unreadable", ErrCorruptHistory, oid.String())
		}

		verifyErr := verifyCommitObjects(odb, commit)

		commit.Free()

		if verifyErr != nil {
			return verifyErr
		}
	}

	return nil
}

// verifyCommitObjects checks that the commit's tree and parents exist.
func verifyCommitObjects(odb *git2go.Odb, commit *git2go.Commit) error {
	if !odb.Exists(commit.TreeId()) {
		return fmt.Errorf("%w: tree %s missing for commit %s",
			ErrCorruptHistory, OidString(commit.TreeId()), OidString(commit.Id()))
	}

	for i := uint(0); i < commit.ParentCount(); i++ {
		if !odb.Exists(commit.ParentId(i)) {
			return fmt.Errorf("%w: parent %s missing for commit %s",
				ErrCorruptHistory, OidString(commit.ParentId(i)), OidString(commit.Id()))
		}
	}

	return nil
}
