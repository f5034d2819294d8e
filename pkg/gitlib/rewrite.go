package gitlib

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrEmptyGroup is returned when a merged tree is requested for no commits.
var ErrEmptyGroup = errors.New("commit group is empty")

// CreateCommit writes a new commit object with the given tree, parents,
// message, and signatures. No reference is updated; callers move the branch
// once the whole rewrite succeeds.
func (r *Repository) CreateCommit(
	treeHash string,
	parentHashes []string,
	message string,
	author, committer Signature,
) (string, error) {
	treeOid, err := ParseOid(treeHash)
	if err != nil {
		return "", err
	}

	tree, treeErr := r.repo.LookupTree(treeOid)
	if treeErr != nil {
		return "", fmt.Errorf("lookup tree %s: %w", treeHash, treeErr)
	}
	defer tree.Free()

	parents := make([]*git2go.Commit, 0, len(parentHashes))

	defer func() {
		for _, parent := range parents {
			parent.Free()
		}
	}()

	for _, parentHash := range parentHashes {
		oid, oidErr := ParseOid(parentHash)
		if oidErr != nil {
			return "", oidErr
		}

		parent, lookupErr := r.repo.LookupCommit(oid)
		if lookupErr != nil {
			return "", fmt.Errorf("lookup parent %s: %w", parentHash, lookupErr)
		}

		parents = append(parents, parent)
	}

	oid, commitErr := r.repo.CreateCommit("", author.toGit(), committer.toGit(), message, tree, parents...)
	if commitErr != nil {
		return "", fmt.Errorf("create commit: %w", commitErr)
	}

	return OidString(oid), nil
}

// treeEntry is one blob in a flattened tree, keyed by its full path.
type treeEntry struct {
	oid  *git2go.Oid
	mode git2go.Filemode
}

// BuildMergedTree flattens the first commit's tree and overlays every later
// commit's change set against its own first parent, in order. A later change
// to a path supersedes an earlier one, and a later deletion removes the path
// even when an earlier member modified it. The merged tree is written to the
// object database and its hash returned.
func (r *Repository) BuildMergedTree(commitHashes []string) (string, error) {
	entries, err := r.mergedEntries(commitHashes)
	if err != nil {
		return "", err
	}

	return r.writeTree(entries)
}

// MergedTreePreview computes the merged tree in memory without writing any
// object, returning the number of files it would contain. Used by dry runs,
// which must leave the object database untouched.
func (r *Repository) MergedTreePreview(commitHashes []string) (int, error) {
	entries, err := r.mergedEntries(commitHashes)
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

// mergedEntries flattens the first commit's tree and overlays the change set
// of every later commit.
func (r *Repository) mergedEntries(commitHashes []string) (map[string]treeEntry, error) {
	if len(commitHashes) == 0 {
		return nil, ErrEmptyGroup
	}

	base, err := r.lookupCommitByHash(commitHashes[0])
	if err != nil {
		return nil, err
	}
	defer base.Free()

	baseTree, baseErr := base.Tree()
	if baseErr != nil {
		return nil, fmt.Errorf("get base tree: %w", baseErr)
	}
	defer baseTree.Free()

	entries := map[string]treeEntry{}

	collectErr := r.collectTreeEntries(baseTree, "", entries)
	if collectErr != nil {
		return nil, collectErr
	}

	for _, hash := range commitHashes[1:] {
		overlayErr := r.overlayCommitChanges(hash, entries)
		if overlayErr != nil {
			return nil, overlayErr
		}
	}

	return entries, nil
}

// lookupCommitByHash resolves a hex hash to a libgit2 commit.
func (r *Repository) lookupCommitByHash(hash string) (*git2go.Commit, error) {
	oid, err := ParseOid(hash)
	if err != nil {
		return nil, err
	}

	commit, lookupErr := r.repo.LookupCommit(oid)
	if lookupErr != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", hash, lookupErr)
	}

	return commit, nil
}

// collectTreeEntries flattens all blobs of a tree into path-keyed entries.
func (r *Repository) collectTreeEntries(tree *git2go.Tree, prefix string, entries map[string]treeEntry) error {
	count := tree.EntryCount()

	for i := uint64(0); i < count; i++ {
		entry := tree.EntryByIndex(i)
		if entry == nil {
			continue
		}

		path := entry.Name
		if prefix != "" {
			path = prefix + "/" + entry.Name
		}

		if entry.Type == git2go.ObjectTree {
			subTree, err := r.repo.LookupTree(entry.Id)
			if err != nil {
				return fmt.Errorf("lookup subtree %s: %w", path, err)
			}

			subErr := r.collectTreeEntries(subTree, path, entries)

			subTree.Free()

			if subErr != nil {
				return subErr
			}

			continue
		}

		entries[path] = treeEntry{oid: entry.Id, mode: entry.Filemode}
	}

	return nil
}

// overlayCommitChanges applies one commit's change set against its first
// parent onto the flattened entries.
func (r *Repository) overlayCommitChanges(hash string, entries map[string]treeEntry) error {
	commit, err := r.lookupCommitByHash(hash)
	if err != nil {
		return err
	}
	defer commit.Free()

	newTree, treeErr := commit.Tree()
	if treeErr != nil {
		return fmt.Errorf("get commit tree: %w", treeErr)
	}
	defer newTree.Free()

	var oldTree *git2go.Tree

	if commit.ParentCount() > 0 {
		parent := commit.Parent(0)
		defer parent.Free()

		oldTree, treeErr = parent.Tree()
		if treeErr != nil {
			return fmt.Errorf("get parent tree: %w", treeErr)
		}
		defer oldTree.Free()
	}

	opts, optsErr := git2go.DefaultDiffOptions()
	if optsErr != nil {
		return fmt.Errorf("get diff options: %w", optsErr)
	}

	diff, diffErr := r.repo.DiffTreeToTree(oldTree, newTree, &opts)
	if diffErr != nil {
		return fmt.Errorf("diff trees: %w", diffErr)
	}
	defer diff.Free()

	numDeltas, numErr := diff.NumDeltas()
	if numErr != nil {
		return fmt.Errorf("get num deltas: %w", numErr)
	}

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			continue
		}

		applyDelta(newTree, delta, entries)
	}

	return nil
}

// applyDelta applies a single file delta to the flattened entries. Additions
// and modifications take the blob from the commit's own tree; deletions drop
// the path.
func applyDelta(newTree *git2go.Tree, delta git2go.DiffDelta, entries map[string]treeEntry) {
	switch delta.Status {
	case git2go.DeltaDeleted:
		delete(entries, delta.OldFile.Path)
	case git2go.DeltaAdded, git2go.DeltaModified, git2go.DeltaRenamed, git2go.DeltaCopied:
		if delta.Status == git2go.DeltaRenamed {
			delete(entries, delta.OldFile.Path)
		}

		entry, err := newTree.EntryByPath(delta.NewFile.Path)
		if err != nil || entry == nil {
			return
		}

		entries[delta.NewFile.Path] = treeEntry{oid: entry.Id, mode: entry.Filemode}
	default:
		// Unmodified and transient states carry no tree change.
	}
}

// writeTree materializes the flattened entries as nested git tree objects and
// returns the root tree hash.
func (r *Repository) writeTree(entries map[string]treeEntry) (string, error) {
	oid, err := r.writeTreeLevel(entries, "")
	if err != nil {
		return "", err
	}

	return OidString(oid), nil
}

// writeTreeLevel writes the tree for one directory level. prefix is the
// directory path ("" for the root) and entries hold full paths.
func (r *Repository) writeTreeLevel(entries map[string]treeEntry, prefix string) (*git2go.Oid, error) {
	builder, err := r.repo.TreeBuilder()
	if err != nil {
		return nil, fmt.Errorf("create tree builder: %w", err)
	}
	defer builder.Free()

	blobs, dirs := partitionLevel(entries, prefix)

	for _, name := range sortedKeys(blobs) {
		entry := blobs[name]

		insertErr := builder.Insert(name, entry.oid, entry.mode)
		if insertErr != nil {
			return nil, fmt.Errorf("insert blob %s: %w", name, insertErr)
		}
	}

	for _, dir := range dirs {
		childPrefix := dir
		if prefix != "" {
			childPrefix = prefix + "/" + dir
		}

		subOid, subErr := r.writeTreeLevel(entries, childPrefix)
		if subErr != nil {
			return nil, subErr
		}

		insertErr := builder.Insert(dir, subOid, git2go.FilemodeTree)
		if insertErr != nil {
			return nil, fmt.Errorf("insert subtree %s: %w", dir, insertErr)
		}
	}

	oid, writeErr := builder.Write()
	if writeErr != nil {
		return nil, fmt.Errorf("write tree: %w", writeErr)
	}

	return oid, nil
}

// partitionLevel splits entries under prefix into direct blobs and the sorted
// set of immediate subdirectory names.
func partitionLevel(entries map[string]treeEntry, prefix string) (map[string]treeEntry, []string) {
	blobs := map[string]treeEntry{}
	dirSet := map[string]struct{}{}

	for path, entry := range entries {
		rel := path

		if prefix != "" {
			if !strings.HasPrefix(path, prefix+"/") {
				continue
			}

			rel = strings.TrimPrefix(path, prefix+"/")
		}

		name, rest, nested := strings.Cut(rel, "/")
		if nested && rest != "" {
			dirSet[name] = struct{}{}
		} else {
			blobs[name] = entry
		}
	}

	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}

	sort.Strings(dirs)

	return blobs, dirs
}

// sortedKeys returns map keys in lexical order for deterministic tree writes.
func sortedKeys(m map[string]treeEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
