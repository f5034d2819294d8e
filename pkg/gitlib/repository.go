package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Sentinel errors for repository preconditions.
var (
	// ErrBranchNotFound indicates the requested branch does not exist locally.
	ErrBranchNotFound = errors.New("branch not found")
	// ErrDirtyWorkingTree indicates uncommitted changes in the working tree.
	ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")
	// ErrNotSynced indicates the branch tip differs from its upstream.
	ErrNotSynced = errors.New("branch is not synced with its upstream")
)

// Repository wraps a libgit2 repository.
type Repository struct {
	repo *git2go.Repository
	path string
}

// OpenRepository opens a git repository at the given path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// Free releases the repository resources.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// Native returns the underlying libgit2 repository for advanced operations.
func (r *Repository) Native() *git2go.Repository {
	return r.repo
}

// Head returns the hash of the HEAD commit.
func (r *Repository) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return OidString(ref.Target()), nil
}

// BranchTip returns the hash of the tip commit of a local branch.
func (r *Repository) BranchTip(branch string) (string, error) {
	ref, err := r.repo.LookupBranch(branch, git2go.BranchLocal)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	defer ref.Free()

	return OidString(ref.Target()), nil
}

// CheckClean returns ErrDirtyWorkingTree when the index or working tree
// carries uncommitted changes, untracked files included.
func (r *Repository) CheckClean() error {
	opts := &git2go.StatusOptions{
		Show:  git2go.StatusShowIndexAndWorkdir,
		Flags: git2go.StatusOptIncludeUntracked,
	}

	statusList, err := r.repo.StatusList(opts)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	defer statusList.Free()

	count, countErr := statusList.EntryCount()
	if countErr != nil {
		return fmt.Errorf("count status entries: %w", countErr)
	}

	if count > 0 {
		return fmt.Errorf("%w: %d entries", ErrDirtyWorkingTree, count)
	}

	return nil
}

// CheckUpstreamSync returns ErrNotSynced when the branch has an upstream and
// the two tips differ. A branch without an upstream passes.
func (r *Repository) CheckUpstreamSync(branch string) error {
	ref, err := r.repo.LookupBranch(branch, git2go.BranchLocal)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	defer ref.Free()

	upstream, upErr := ref.Upstream()
	if upErr != nil {
		// No upstream configured; nothing to compare against.
		return nil
	}
	defer upstream.Free()

	if !ref.Target().Equal(upstream.Target()) {
		return fmt.Errorf("%w: %s", ErrNotSynced, branch)
	}

	return nil
}

// CreateBranchRef creates a branch named name pointing at the given commit.
func (r *Repository) CreateBranchRef(name, atHash string) error {
	oid, err := ParseOid(atHash)
	if err != nil {
		return err
	}

	commit, lookupErr := r.repo.LookupCommit(oid)
	if lookupErr != nil {
		return fmt.Errorf("lookup commit %s: %w", atHash, lookupErr)
	}
	defer commit.Free()

	branch, createErr := r.repo.CreateBranch(name, commit, false)
	if createErr != nil {
		return fmt.Errorf("create branch %s: %w", name, createErr)
	}

	branch.Free()

	return nil
}

// MoveBranch repoints an existing local branch at the given commit without
// touching the working tree.
func (r *Repository) MoveBranch(name, toHash string) error {
	oid, err := ParseOid(toHash)
	if err != nil {
		return err
	}

	refName := "refs/heads/" + name

	ref, lookupErr := r.repo.References.Lookup(refName)
	if lookupErr != nil {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	defer ref.Free()

	moved, setErr := ref.SetTarget(oid, "rehash: rewrite "+name)
	if setErr != nil {
		return fmt.Errorf("move branch %s: %w", name, setErr)
	}

	moved.Free()

	return nil
}

// ResetBranch hard-resets HEAD and the working tree to the given reference.
func (r *Repository) ResetBranch(toRef string) error {
	obj, err := r.repo.RevparseSingle(toRef)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", toRef, err)
	}
	defer obj.Free()

	commit, peelErr := r.repo.LookupCommit(obj.Id())
	if peelErr != nil {
		return fmt.Errorf("lookup commit %s: %w", toRef, peelErr)
	}
	defer commit.Free()

	resetErr := r.repo.ResetToCommit(commit, git2go.ResetHard, &git2go.CheckoutOptions{})
	if resetErr != nil {
		return fmt.Errorf("reset to %s: %w", toRef, resetErr)
	}

	return nil
}

// ListBranches returns the names of local branches carrying the given prefix.
// An empty prefix lists all local branches.
func (r *Repository) ListBranches(prefix string) ([]string, error) {
	iter, err := r.repo.NewBranchIterator(git2go.BranchLocal)
	if err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	defer iter.Free()

	var names []string

	forErr := iter.ForEach(func(branch *git2go.Branch, _ git2go.BranchType) error {
		name, nameErr := branch.Name()
		if nameErr != nil {
			return nameErr
		}

		if prefix == "" || len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}

		return nil
	})
	if forErr != nil {
		return nil, fmt.Errorf("list branches: %w", forErr)
	}

	return names, nil
}
