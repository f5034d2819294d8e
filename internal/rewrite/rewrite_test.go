package rewrite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehash-tools/rehash/internal/aigen"
	"github.com/rehash-tools/rehash/internal/rewrite"
	"github.com/rehash-tools/rehash/internal/store"
	"github.com/rehash-tools/rehash/pkg/gitlib"
)

// fakeRepo records mutation calls and returns canned hashes.
type fakeRepo struct {
	createCalls  int
	mergeCalls   int
	previewCalls int

	lastTree    string
	lastParents []string
	lastMessage string

	createErr error
	mergeErr  error
}

func (f *fakeRepo) CreateCommit(treeHash string, parents []string, message string,
	_, _ gitlib.Signature,
) (string, error) {
	f.createCalls++
	f.lastTree = treeHash
	f.lastParents = parents
	f.lastMessage = message

	if f.createErr != nil {
		return "", f.createErr
	}

	return "new0000000000000000000000000000000000hash", nil
}

func (f *fakeRepo) BuildMergedTree(hashes []string) (string, error) {
	f.mergeCalls++

	if f.mergeErr != nil {
		return "", f.mergeErr
	}

	return fmt.Sprintf("merged%034d", len(hashes)), nil
}

func (f *fakeRepo) MergedTreePreview(hashes []string) (int, error) {
	f.previewCalls++

	return len(hashes) + 1, nil
}

// fakeGen fails a fixed number of times before succeeding.
type fakeGen struct {
	failures int
	calls    int
	message  string
}

func (f *fakeGen) Generate(_ context.Context, _ aigen.Input) (string, error) {
	f.calls++

	if f.calls <= f.failures {
		return "", errors.New("backend unavailable")
	}

	return f.message, nil
}

func groupOf(commits ...store.Commit) (store.Group, []store.Commit) {
	g := store.Group{ID: 0}
	for _, c := range commits {
		g.Hashes = append(g.Hashes, c.Hash)
		g.Similarities = append(g.Similarities, 1)
	}

	return g, commits
}

func testCommit(n int, parents ...string) store.Commit {
	return store.Commit{
		Hash:          fmt.Sprintf("%040d", n),
		ParentHashes:  parents,
		Message:       "wip",
		Diff:          "+line",
		ModifiedFiles: []string{"main.go"},
		Author:        "Dev",
		AuthorEmail:   "dev@example.com",
		AuthorTime:    1700000000,
		Committer:     "Dev",
		CommitterEmail: "dev@example.com",
		CommitterTime: 1700000000,
		TreeHash:      fmt.Sprintf("tree%036d", n),
		Status:        store.StatusPending,
	}
}

func fastConfig() rewrite.Config {
	return rewrite.Config{MaxRetries: 3, RetryBase: time.Millisecond}
}

func TestProcessGroupSingleCommitReusesTree(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	gen := &fakeGen{message: "feat: add validation"}
	engine := rewrite.NewEngine(repo, gen, fastConfig(), nil)

	commit := testCommit(1, "aaaabbbbccccddddaaaabbbbccccddddaaaabbbb")
	group, commits := groupOf(commit)

	mapping := map[string]string{
		"aaaabbbbccccddddaaaabbbbccccddddaaaabbbb": "1111222233334444111122223333444411112222",
	}

	plan, err := engine.ProcessGroup(context.Background(), group, commits, mapping)
	require.NoError(t, err)

	assert.Equal(t, commit.TreeHash, plan.TreeHash)
	assert.Equal(t, []string{"1111222233334444111122223333444411112222"}, plan.Parents)
	assert.Equal(t, store.StatusDone, plan.Status)
	assert.Equal(t, "feat: add validation", plan.Message)
	assert.False(t, plan.FallbackUsed)
	assert.NotEmpty(t, plan.NewHash)
	assert.Equal(t, 1, repo.createCalls)
	assert.Zero(t, repo.mergeCalls)
}

func TestProcessGroupMultiCommitMergesTree(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	gen := &fakeGen{message: "refactor: consolidate auth"}
	engine := rewrite.NewEngine(repo, gen, fastConfig(), nil)

	first := testCommit(1, "0000000000000000000000000000000000000000")
	second := testCommit(2, first.Hash)
	group, commits := groupOf(first, second)

	plan, err := engine.ProcessGroup(context.Background(), group, commits, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, store.StatusMerged, plan.Status)
	assert.Equal(t, 1, repo.mergeCalls)
	assert.Equal(t, repo.lastTree, plan.TreeHash)
	// Parents come from the first member, untranslated when unmapped.
	assert.Equal(t, []string{"0000000000000000000000000000000000000000"}, plan.Parents)

	result := plan.Result()
	assert.Equal(t, group.Hashes, result.Hashes)
	assert.Equal(t, plan.NewHash, result.NewHash)
}

func TestProcessGroupDryRunIsReadOnly(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	gen := &fakeGen{message: "feat: combined change"}

	cfg := fastConfig()
	cfg.DryRun = true
	engine := rewrite.NewEngine(repo, gen, cfg, nil)

	first := testCommit(1)
	second := testCommit(2, first.Hash)
	group, commits := groupOf(first, second)

	plan, err := engine.ProcessGroup(context.Background(), group, commits, map[string]string{})
	require.NoError(t, err)

	assert.Empty(t, plan.NewHash)
	assert.Empty(t, plan.TreeHash)
	assert.Equal(t, 3, plan.TreeFiles)
	assert.Equal(t, "feat: combined change", plan.Message)
	assert.Zero(t, repo.createCalls)
	assert.Zero(t, repo.mergeCalls)
	assert.Equal(t, 1, repo.previewCalls)
}

func TestProcessGroupRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	gen := &fakeGen{failures: 2, message: "fix: handle nil token"}
	engine := rewrite.NewEngine(repo, gen, fastConfig(), nil)

	group, commits := groupOf(testCommit(1))

	plan, err := engine.ProcessGroup(context.Background(), group, commits, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, "fix: handle nil token", plan.Message)
	assert.False(t, plan.FallbackUsed)
}

func TestProcessGroupFallbackAfterExhaustion(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	gen := &fakeGen{failures: 10}
	engine := rewrite.NewEngine(repo, gen, fastConfig(), nil)

	commit := testCommit(1)
	commit.Message = "fix the login bug"
	group, commits := groupOf(commit)

	plan, err := engine.ProcessGroup(context.Background(), group, commits, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, gen.calls)
	assert.True(t, plan.FallbackUsed)
	assert.Equal(t, "fix: resolve issues", plan.Message)
	assert.NotEmpty(t, plan.NewHash)
}

func TestProcessGroupNilGeneratorUsesFallback(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	engine := rewrite.NewEngine(repo, nil, fastConfig(), nil)

	commit := testCommit(1)
	commit.Message = "add new endpoint"
	group, commits := groupOf(commit)

	plan, err := engine.ProcessGroup(context.Background(), group, commits, nil)
	require.NoError(t, err)

	assert.True(t, plan.FallbackUsed)
	assert.Equal(t, "feat: add new feature", plan.Message)
}

func TestProcessGroupRepositoryFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{createErr: errors.New("odb write refused")}
	gen := &fakeGen{message: "feat: x"}
	engine := rewrite.NewEngine(repo, gen, fastConfig(), nil)

	group, commits := groupOf(testCommit(1))

	plan, err := engine.ProcessGroup(context.Background(), group, commits, nil)
	require.Error(t, err)
	assert.Empty(t, plan.NewHash)
}

func TestProcessGroupValidatesMembers(t *testing.T) {
	t.Parallel()

	engine := rewrite.NewEngine(&fakeRepo{}, nil, fastConfig(), nil)

	_, err := engine.ProcessGroup(context.Background(), store.Group{}, nil, nil)
	assert.ErrorIs(t, err, rewrite.ErrEmptyGroup)

	group, _ := groupOf(testCommit(1))

	_, err = engine.ProcessGroup(context.Background(), group, []store.Commit{testCommit(2)}, nil)
	assert.ErrorIs(t, err, rewrite.ErrGroupMismatch)
}

func TestProcessGroupCancelledContext(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{failures: 10}
	engine := rewrite.NewEngine(&fakeRepo{}, gen, fastConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	group, commits := groupOf(testCommit(1))

	_, err := engine.ProcessGroup(ctx, group, commits, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallbackMessageRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		messages []string
		want     string
	}{
		{"fix keywords", []string{"resolve the error in parser"}, "fix: resolve issues"},
		{"feature keywords", []string{"implement pagination"}, "feat: add new feature"},
		{"refactor keywords", []string{"clean up handlers"}, "refactor: improve code"},
		{"docs keywords", []string{"update readme"}, "docs: update documentation"},
		{"test keywords", []string{"cover edge cases with tests"}, "test: add tests"},
		{"style keywords", []string{"run the formatter"}, "style: format code"},
		{"no match", []string{"misc updates"}, "chore: update files"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := rewrite.FallbackMessage(aigen.Input{Messages: tc.messages})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConventionalFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"feat: add thing", "feat: add thing"},
		{"Fix: broken link", "Fix: broken link"},
		{"feat(auth): scoped change", "feat(auth): scoped change"},
		{"add pagination support", "feat: add pagination support"},
		{"fix broken redirect", "fix: fix broken redirect"},
		{"update readme", "docs: update readme"},
		{"  feat: trimmed  \nbody line", "feat: trimmed"},
		{"", "chore: update files"},
		{"something else", "chore: something else"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, rewrite.ConventionalFormat(tc.in), "input %q", tc.in)
	}
}
