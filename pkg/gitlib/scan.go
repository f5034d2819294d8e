package gitlib

import (
	"context"
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// CommitData is the metadata extracted for one scanned commit.
type CommitData struct {
	Hash           string
	ParentHashes   []string
	Message        string
	Diff           string
	ModifiedFiles  []string
	Author         string
	AuthorEmail    string
	AuthorTime     int64
	Committer      string
	CommitterEmail string
	CommitterTime  int64
	TreeHash       string
}

// ListCommits walks the branch from root to tip and extracts metadata for
// every commit, including the textual patch against the first parent and the
// set of touched paths. The returned slice is ordered oldest first, which is
// the order grouping and rewriting consume.
func (r *Repository) ListCommits(ctx context.Context, branch string) ([]CommitData, error) {
	tip, err := r.BranchTip(branch)
	if err != nil {
		return nil, err
	}

	tipOid, _ := ParseOid(tip)

	walk, walkErr := r.repo.Walk()
	if walkErr != nil {
		return nil, fmt.Errorf("create revwalk: %w", walkErr)
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTopological | git2go.SortReverse)

	pushErr := walk.Push(tipOid)
	if pushErr != nil {
		return nil, fmt.Errorf("push branch tip: %w", pushErr)
	}

	var commits []CommitData

	oid := new(git2go.Oid)

	for {
		nextErr := walk.Next(oid)
		if nextErr != nil {
			if git2go.IsErrorCode(nextErr, git2go.ErrorCodeIterOver) {
				break
			}

			return nil, fmt.Errorf("walk history: %w", nextErr)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		commit, lookupErr := r.repo.LookupCommit(oid)
		if lookupErr != nil {
			return nil, fmt.Errorf("lookup commit %s: %w", oid.String(), lookupErr)
		}

		data, extractErr := r.extractCommit(commit)

		commit.Free()

		if extractErr != nil {
			return nil, extractErr
		}

		commits = append(commits, data)
	}

	return commits, nil
}

// extractCommit builds a CommitData from a libgit2 commit.
func (r *Repository) extractCommit(commit *git2go.Commit) (CommitData, error) {
	author := signatureFrom(commit.Author())
	committer := signatureFrom(commit.Committer())

	parents := make([]string, 0, commit.ParentCount())
	for i := uint(0); i < commit.ParentCount(); i++ {
		parents = append(parents, OidString(commit.ParentId(i)))
	}

	diffText, files, err := r.commitPatch(commit)
	if err != nil {
		return CommitData{}, err
	}

	return CommitData{
		Hash:           OidString(commit.Id()),
		ParentHashes:   parents,
		Message:        commit.Message(),
		Diff:           diffText,
		ModifiedFiles:  files,
		Author:         author.Name,
		AuthorEmail:    author.Email,
		AuthorTime:     author.When.Unix(),
		Committer:      committer.Name,
		CommitterEmail: committer.Email,
		CommitterTime:  committer.When.Unix(),
		TreeHash:       OidString(commit.TreeId()),
	}, nil
}

// commitPatch renders the commit's change against its first parent as a
// unified patch plus the list of touched paths. Root commits diff against the
// empty tree, so the patch covers the full initial content.
func (r *Repository) commitPatch(commit *git2go.Commit) (string, []string, error) {
	newTree, err := commit.Tree()
	if err != nil {
		return "", nil, fmt.Errorf("get commit tree: %w", err)
	}
	defer newTree.Free()

	var oldTree *git2go.Tree

	if commit.ParentCount() > 0 {
		parent := commit.Parent(0)
		defer parent.Free()

		oldTree, err = parent.Tree()
		if err != nil {
			return "", nil, fmt.Errorf("get parent tree: %w", err)
		}
		defer oldTree.Free()
	}

	opts, optsErr := git2go.DefaultDiffOptions()
	if optsErr != nil {
		return "", nil, fmt.Errorf("get diff options: %w", optsErr)
	}

	diff, diffErr := r.repo.DiffTreeToTree(oldTree, newTree, &opts)
	if diffErr != nil {
		return "", nil, fmt.Errorf("diff trees: %w", diffErr)
	}
	defer diff.Free()

	return renderPatch(diff)
}

// renderPatch concatenates per-file patches and collects touched paths.
func renderPatch(diff *git2go.Diff) (string, []string, error) {
	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return "", nil, fmt.Errorf("get num deltas: %w", err)
	}

	var text strings.Builder

	files := make([]string, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			continue
		}

		path := delta.NewFile.Path
		if path == "" {
			path = delta.OldFile.Path
		}

		files = append(files, path)

		patch, patchErr := diff.Patch(i)
		if patchErr != nil {
			continue
		}

		patchText, strErr := patch.String()
		if strErr == nil {
			text.WriteString(patchText)
		}

		_ = patch.Free()
	}

	return text.String(), files, nil
}
