// Package store persists the rewrite state for one repository branch: the
// scanned commits, the computed groups, the old-to-new hash mapping, and the
// session cursor. The whole state is one document written atomically, so a
// group's status transition, its mapping rows, and the cursor advance either
// all land on disk or none do.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatVersion is the current state document format version.
const FormatVersion = 1

// Directory and file permissions for state files.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// repoHashLen is the number of hex chars identifying a repository path.
const repoHashLen = 16

// branchHashLen is the number of hex chars disambiguating a branch name in
// the state filename.
const branchHashLen = 8

// Sentinel errors for store validation.
var (
	// ErrRepoMismatch indicates the state file belongs to another repository.
	ErrRepoMismatch = errors.New("state file belongs to a different repository")
	// ErrBranchMismatch indicates the state file belongs to another branch.
	ErrBranchMismatch = errors.New("state file belongs to a different branch")
	// ErrVersionMismatch indicates an unsupported state format version.
	ErrVersionMismatch = errors.New("unsupported state format version")
	// ErrDuplicateMapping indicates an old hash already maps to a different new hash.
	ErrDuplicateMapping = errors.New("old hash already mapped")
	// ErrNoSession indicates no session has been initialized yet.
	ErrNoSession = errors.New("no session state")
	// ErrCorruptState indicates the cursor disagrees with the persisted groups.
	ErrCorruptState = errors.New("state file is inconsistent")
)

// document is the on-disk shape of the store.
type document struct {
	Version  int               `json:"version"`
	RepoPath string            `json:"repo_path"`
	Branch   string            `json:"branch"`
	Commits  []Commit          `json:"commits"`
	Groups   []Group           `json:"groups"`
	Mapping  map[string]string `json:"mapping"`
	Session  *Session          `json:"session,omitempty"`
}

// Store is the single writer for all rewrite state of one branch.
type Store struct {
	path  string
	codec Codec
	doc   document
	index map[string]int
}

// RepoHash returns a short stable identifier for a repository path, used to
// scope state directories.
func RepoHash(repoPath string) string {
	sum := sha256.Sum256([]byte(repoPath))

	return hex.EncodeToString(sum[:])[:repoHashLen]
}

// branchFileKey flattens a branch name into a single filename component.
// Branch names routinely contain path separators (feature/login); the hash
// suffix keeps distinct branches distinct after flattening.
func branchFileKey(branch string) string {
	flat := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, branch)

	sum := sha256.Sum256([]byte(branch))

	return flat + "-" + hex.EncodeToString(sum[:])[:branchHashLen]
}

// Open loads the state for (repoPath, branch) from baseDir, creating a fresh
// empty store when no state file exists. A state file written for a different
// repository or branch is rejected rather than silently reused.
func Open(baseDir, repoPath, branch string, codec Codec) (*Store, error) {
	dir := filepath.Join(baseDir, RepoHash(repoPath))

	mkErr := os.MkdirAll(dir, dirPerm)
	if mkErr != nil {
		return nil, fmt.Errorf("create state dir: %w", mkErr)
	}

	s := &Store{
		path:  filepath.Join(dir, "state-"+branchFileKey(branch)+codec.Extension()),
		codec: codec,
		doc: document{
			Version:  FormatVersion,
			RepoPath: repoPath,
			Branch:   branch,
			Mapping:  map[string]string{},
		},
		index: map[string]int{},
	}

	file, openErr := os.Open(s.path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return s, nil
		}

		return nil, fmt.Errorf("open state file: %w", openErr)
	}
	defer file.Close()

	decodeErr := codec.Decode(file, &s.doc)
	if decodeErr != nil {
		return nil, fmt.Errorf("read state file: %w", decodeErr)
	}

	validateErr := s.validate(repoPath, branch)
	if validateErr != nil {
		return nil, validateErr
	}

	if s.doc.Mapping == nil {
		s.doc.Mapping = map[string]string{}
	}

	s.reindex()

	return s, nil
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// validate checks the loaded document against the expected scope.
func (s *Store) validate(repoPath, branch string) error {
	if s.doc.Version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrVersionMismatch, s.doc.Version)
	}

	if s.doc.RepoPath != repoPath {
		return fmt.Errorf("%w: state has %q", ErrRepoMismatch, s.doc.RepoPath)
	}

	if s.doc.Branch != branch {
		return fmt.Errorf("%w: state has %q", ErrBranchMismatch, s.doc.Branch)
	}

	if s.doc.Session != nil && s.doc.Session.Cursor > len(s.doc.Groups) {
		return fmt.Errorf("%w: cursor %d beyond %d groups",
			ErrCorruptState, s.doc.Session.Cursor, len(s.doc.Groups))
	}

	return nil
}

// reindex rebuilds the hash-to-position index.
func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.doc.Commits))
	for i, commit := range s.doc.Commits {
		s.index[commit.Hash] = i
	}
}

// save writes the document atomically: encode to a temp file in the same
// directory, then rename over the previous state.
func (s *Store) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}

	encodeErr := s.codec.Encode(tmp, &s.doc)
	if encodeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return encodeErr
	}

	syncErr := tmp.Sync()
	if syncErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("sync state: %w", syncErr)
	}

	closeErr := tmp.Close()
	if closeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close state: %w", closeErr)
	}

	chmodErr := os.Chmod(tmp.Name(), filePerm)
	if chmodErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("chmod state: %w", chmodErr)
	}

	renameErr := os.Rename(tmp.Name(), s.path)
	if renameErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("commit state: %w", renameErr)
	}

	return nil
}

// HasCommits reports whether a scan has already populated the store.
func (s *Store) HasCommits() bool {
	return len(s.doc.Commits) > 0
}

// PutCommits stores the scanned commits, replacing any previous scan.
func (s *Store) PutCommits(commits []Commit) error {
	s.doc.Commits = make([]Commit, len(commits))
	copy(s.doc.Commits, commits)
	s.reindex()

	return s.save()
}

// Commits returns all scanned commits in scan (oldest-first) order.
func (s *Store) Commits() []Commit {
	out := make([]Commit, len(s.doc.Commits))
	copy(out, s.doc.Commits)

	return out
}

// Commit returns one commit by hash.
func (s *Store) Commit(hash string) (Commit, bool) {
	i, ok := s.index[hash]
	if !ok {
		return Commit{}, false
	}

	return s.doc.Commits[i], true
}

// PendingCommits returns commits still awaiting processing, oldest first.
func (s *Store) PendingCommits() []Commit {
	var out []Commit

	for _, commit := range s.doc.Commits {
		if commit.Status == StatusPending {
			out = append(out, commit)
		}
	}

	return out
}

// HasGroups reports whether clustering results are already persisted.
func (s *Store) HasGroups() bool {
	return len(s.doc.Groups) > 0
}

// PutGroups persists the clustering result. Re-clustering already-grouped
// commits is a no-op: once groups exist they are never replaced, which keeps
// resumed runs on the grouping that execution already started from.
func (s *Store) PutGroups(groups []Group) error {
	if s.HasGroups() {
		return nil
	}

	s.doc.Groups = make([]Group, len(groups))
	copy(s.doc.Groups, groups)

	return s.save()
}

// Groups returns the persisted groups in execution order.
func (s *Store) Groups() []Group {
	out := make([]Group, len(s.doc.Groups))
	copy(out, s.doc.Groups)

	return out
}

// Mapping returns a copy of the full old-to-new hash mapping.
func (s *Store) Mapping() map[string]string {
	out := make(map[string]string, len(s.doc.Mapping))
	for k, v := range s.doc.Mapping {
		out[k] = v
	}

	return out
}

// MappedHash returns the new hash an old hash was rewritten to.
func (s *Store) MappedHash(oldHash string) (string, bool) {
	newHash, ok := s.doc.Mapping[oldHash]

	return newHash, ok
}

// Session returns the session record.
func (s *Store) Session() (Session, error) {
	if s.doc.Session == nil {
		return Session{}, ErrNoSession
	}

	return *s.doc.Session, nil
}

// PutSession persists the session record.
func (s *Store) PutSession(session Session) error {
	session.UpdatedAt = time.Now().UTC()
	s.doc.Session = &session

	return s.save()
}

// GroupResult is the atomic outcome of executing one group: every member
// maps to the single new hash and carries the given status, and the cursor
// moves past the group.
type GroupResult struct {
	GroupID int
	Hashes  []string
	NewHash string
	Status  Status
}

// ApplyGroupResult commits a group's completion as one unit. The mapping is
// append-only: remapping an already-mapped hash to a different target fails
// before anything is persisted.
func (s *Store) ApplyGroupResult(res GroupResult) error {
	if s.doc.Session == nil {
		return ErrNoSession
	}

	for _, oldHash := range res.Hashes {
		existing, ok := s.doc.Mapping[oldHash]
		if ok && existing != res.NewHash {
			return fmt.Errorf("%w: %s -> %s", ErrDuplicateMapping, oldHash, existing)
		}
	}

	for _, oldHash := range res.Hashes {
		s.doc.Mapping[oldHash] = res.NewHash

		i, ok := s.index[oldHash]
		if ok {
			s.doc.Commits[i].Status = res.Status
		}
	}

	s.doc.Session.Cursor = res.GroupID + 1
	s.doc.Session.ProcessedCommits += len(res.Hashes)
	s.doc.Session.UpdatedAt = time.Now().UTC()

	return s.save()
}

// Stats summarizes the store for status reporting.
func (s *Store) Stats() Stats {
	stats := Stats{
		TotalCommits:  len(s.doc.Commits),
		TotalGroups:   len(s.doc.Groups),
		TotalMappings: len(s.doc.Mapping),
		StatusCounts:  map[Status]int{},
	}

	for _, commit := range s.doc.Commits {
		stats.StatusCounts[commit.Status]++
	}

	return stats
}

// Reset drops all state for the branch, returning the store to its
// just-created shape. Used after a rollback.
func (s *Store) Reset() error {
	s.doc.Commits = nil
	s.doc.Groups = nil
	s.doc.Mapping = map[string]string{}
	s.doc.Session = nil
	s.reindex()

	return s.save()
}
