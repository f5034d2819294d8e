// Package rewrite turns commit groups into new commits: one message per
// group, one tree, parents translated through the accumulated hash mapping.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rehash-tools/rehash/internal/aigen"
	"github.com/rehash-tools/rehash/internal/store"
	"github.com/rehash-tools/rehash/pkg/gitlib"
)

// Repository is the mutation surface the engine needs from a git repository.
type Repository interface {
	// CreateCommit writes a new commit object and returns its hash.
	CreateCommit(treeHash string, parentHashes []string, message string,
		author, committer gitlib.Signature) (string, error)
	// BuildMergedTree writes the last-write-wins merged tree of the commits.
	BuildMergedTree(commitHashes []string) (string, error)
	// MergedTreePreview computes the merged tree without writing objects.
	MergedTreePreview(commitHashes []string) (int, error)
}

// Engine errors.
var (
	// ErrEmptyGroup is returned for a group with no members.
	ErrEmptyGroup = errors.New("group has no members")
	// ErrGroupMismatch indicates the commits do not line up with the group.
	ErrGroupMismatch = errors.New("commits do not match group members")
)

// Defaults for the retry policy.
const (
	defaultMaxRetries = 3
	defaultRetryBase  = time.Second
)

// Config controls the engine's retry policy and execution mode.
type Config struct {
	// MaxRetries is the number of generation attempts before falling back.
	MaxRetries int
	// RetryBase is the first backoff interval; it doubles per attempt.
	RetryBase time.Duration
	// DryRun computes the full plan but never mutates the repository.
	DryRun bool
}

// Plan is the outcome of processing one group. In dry-run mode NewHash stays
// empty and TreeHash is only set for singletons (whose tree already exists).
type Plan struct {
	GroupID      int
	Hashes       []string
	Message      string
	FallbackUsed bool
	TreeHash     string
	TreeFiles    int
	Parents      []string
	NewHash      string
	Status       store.Status
}

// Result converts an applied plan into the atomic store update.
func (p Plan) Result() store.GroupResult {
	return store.GroupResult{
		GroupID: p.GroupID,
		Hashes:  p.Hashes,
		NewHash: p.NewHash,
		Status:  p.Status,
	}
}

// Engine rewrites one group at a time. A nil generator skips straight to the
// rule-based fallback, which keeps the tool usable without an API key.
type Engine struct {
	repo Repository
	gen  aigen.Generator
	cfg  Config
	log  *slog.Logger
	now  func() time.Time
}

// NewEngine creates an engine. gen may be nil; log may be nil for the default
// logger.
func NewEngine(repo Repository, gen aigen.Generator, cfg Config, log *slog.Logger) *Engine {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}

	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		repo: repo,
		gen:  gen,
		cfg:  cfg,
		log:  log,
		now:  time.Now,
	}
}

// ProcessGroup produces the plan for one group and, unless in dry-run mode,
// writes the new commit. mapping is the hash mapping accumulated so far; the
// first member's parents are translated through it. On repository failure the
// plan is returned alongside the error so callers can report what was
// attempted, but nothing has been persisted.
func (e *Engine) ProcessGroup(
	ctx context.Context,
	group store.Group,
	commits []store.Commit,
	mapping map[string]string,
) (Plan, error) {
	validateErr := validateGroup(group, commits)
	if validateErr != nil {
		return Plan{}, validateErr
	}

	message, fallbackUsed, genErr := e.generateMessage(ctx, buildInput(commits))
	if genErr != nil {
		return Plan{}, genErr
	}

	first := commits[0]

	plan := Plan{
		GroupID:      group.ID,
		Hashes:       group.Hashes,
		Message:      message,
		FallbackUsed: fallbackUsed,
		Parents:      translateParents(first.ParentHashes, mapping),
		Status:       store.StatusDone,
	}

	if len(commits) > 1 {
		plan.Status = store.StatusMerged
	} else {
		plan.TreeHash = first.TreeHash
	}

	if e.cfg.DryRun {
		return e.previewPlan(plan, commits)
	}

	if len(commits) > 1 {
		treeHash, treeErr := e.repo.BuildMergedTree(group.Hashes)
		if treeErr != nil {
			return plan, fmt.Errorf("build merged tree: %w", treeErr)
		}

		plan.TreeHash = treeHash
	}

	author := gitlib.Signature{
		Name:  first.Author,
		Email: first.AuthorEmail,
		When:  time.Unix(first.AuthorTime, 0),
	}
	committer := gitlib.Signature{
		Name:  first.Committer,
		Email: first.CommitterEmail,
		When:  e.now(),
	}

	newHash, commitErr := e.repo.CreateCommit(plan.TreeHash, plan.Parents, plan.Message, author, committer)
	if commitErr != nil {
		return plan, fmt.Errorf("create commit: %w", commitErr)
	}

	plan.NewHash = newHash

	e.log.Info("group rewritten",
		"group", group.ID, "members", len(commits), "new_hash", newHash, "fallback", fallbackUsed)

	return plan, nil
}

// previewPlan completes a dry-run plan: the merged tree is computed in memory
// only, so the object database stays untouched.
func (e *Engine) previewPlan(plan Plan, commits []store.Commit) (Plan, error) {
	if len(commits) > 1 {
		files, err := e.repo.MergedTreePreview(plan.Hashes)
		if err != nil {
			return plan, fmt.Errorf("preview merged tree: %w", err)
		}

		plan.TreeFiles = files
	}

	return plan, nil
}

// generateMessage runs the generator with bounded exponential backoff, then
// falls back to the rule-based message. A message is always produced unless
// the context itself is cancelled.
func (e *Engine) generateMessage(ctx context.Context, in aigen.Input) (string, bool, error) {
	if e.gen == nil {
		return FallbackMessage(in), true, nil
	}

	for attempt := range e.cfg.MaxRetries {
		message, err := e.gen.Generate(ctx, in)
		if err == nil {
			return ConventionalFormat(message), false, nil
		}

		e.log.Warn("message generation failed",
			"attempt", attempt+1, "max_retries", e.cfg.MaxRetries, "error", err)

		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}

		if attempt < e.cfg.MaxRetries-1 {
			waitErr := sleepContext(ctx, e.cfg.RetryBase<<attempt)
			if waitErr != nil {
				return "", false, waitErr
			}
		}
	}

	e.log.Info("generation exhausted, using rule-based message")

	return FallbackMessage(in), true, nil
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// validateGroup checks the commits line up one-to-one with the group members.
func validateGroup(group store.Group, commits []store.Commit) error {
	if group.Size() == 0 {
		return ErrEmptyGroup
	}

	if len(commits) != group.Size() {
		return fmt.Errorf("%w: %d commits for %d members", ErrGroupMismatch, len(commits), group.Size())
	}

	for i, commit := range commits {
		if commit.Hash != group.Hashes[i] {
			return fmt.Errorf("%w: position %d has %s, group expects %s",
				ErrGroupMismatch, i, commit.Hash, group.Hashes[i])
		}
	}

	return nil
}

// buildInput assembles the generator input from the group members.
func buildInput(commits []store.Commit) aigen.Input {
	in := aigen.Input{
		Diffs:    make([]string, 0, len(commits)),
		Hashes:   make([]string, 0, len(commits)),
		Messages: make([]string, 0, len(commits)),
	}

	fileSet := map[string]struct{}{}

	for _, commit := range commits {
		in.Diffs = append(in.Diffs, commit.Diff)
		in.Hashes = append(in.Hashes, commit.Hash)
		in.Messages = append(in.Messages, commit.Message)

		for _, file := range commit.ModifiedFiles {
			fileSet[file] = struct{}{}
		}
	}

	in.Files = make([]string, 0, len(fileSet))
	for file := range fileSet {
		in.Files = append(in.Files, file)
	}

	sort.Strings(in.Files)

	return in
}

// translateParents maps original parent hashes through the accumulated
// mapping, keeping unmapped hashes as-is.
func translateParents(parentHashes []string, mapping map[string]string) []string {
	out := make([]string, len(parentHashes))

	for i, parent := range parentHashes {
		if mapped, ok := mapping[parent]; ok {
			out[i] = mapped
		} else {
			out[i] = parent
		}
	}

	return out
}
