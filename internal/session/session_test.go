package session_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehash-tools/rehash/internal/cluster"
	"github.com/rehash-tools/rehash/internal/rewrite"
	"github.com/rehash-tools/rehash/internal/session"
	"github.com/rehash-tools/rehash/internal/store"
	"github.com/rehash-tools/rehash/pkg/gitlib"
)

// fakeGit is an in-memory GitClient recording every mutation.
type fakeGit struct {
	commits  []gitlib.CommitData
	branches map[string]string

	createdBranches []string
	movedTo         map[string]string
	resets          []string
	integrityRuns   int

	cleanErr error
	syncErr  error
}

func newFakeGit(branch string, commits []gitlib.CommitData) *fakeGit {
	tip := ""
	if len(commits) > 0 {
		tip = commits[len(commits)-1].Hash
	}

	return &fakeGit{
		commits:  commits,
		branches: map[string]string{branch: tip},
		movedTo:  map[string]string{},
	}
}

func (f *fakeGit) ListCommits(_ context.Context, _ string) ([]gitlib.CommitData, error) {
	return f.commits, nil
}

func (f *fakeGit) BranchTip(branch string) (string, error) {
	tip, ok := f.branches[branch]
	if !ok {
		return "", gitlib.ErrBranchNotFound
	}

	return tip, nil
}

func (f *fakeGit) CheckClean() error { return f.cleanErr }

func (f *fakeGit) CheckUpstreamSync(_ string) error { return f.syncErr }

func (f *fakeGit) CreateBranchRef(name, atHash string) error {
	f.branches[name] = atHash
	f.createdBranches = append(f.createdBranches, name)

	return nil
}

func (f *fakeGit) MoveBranch(name, toHash string) error {
	f.branches[name] = toHash
	f.movedTo[name] = toHash

	return nil
}

func (f *fakeGit) ResetBranch(toRef string) error {
	f.resets = append(f.resets, toRef)

	return nil
}

func (f *fakeGit) ListBranches(prefix string) ([]string, error) {
	var names []string

	for name := range f.branches {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}

	return names, nil
}

func (f *fakeGit) CheckIntegrity(_ string) error {
	f.integrityRuns++

	return nil
}

// fakeProcessor fabricates new hashes per group and can fail selected groups
// a limited number of times.
type fakeProcessor struct {
	calls    []int
	failOn   map[int]int
	lastMaps []map[string]string
}

func (f *fakeProcessor) ProcessGroup(_ context.Context, group store.Group,
	commits []store.Commit, mapping map[string]string,
) (rewrite.Plan, error) {
	f.calls = append(f.calls, group.ID)

	snapshot := make(map[string]string, len(mapping))
	for k, v := range mapping {
		snapshot[k] = v
	}
	f.lastMaps = append(f.lastMaps, snapshot)

	if f.failOn[group.ID] > 0 {
		f.failOn[group.ID]--

		return rewrite.Plan{}, errors.New("transient failure")
	}

	status := store.StatusDone
	if group.Size() > 1 {
		status = store.StatusMerged
	}

	return rewrite.Plan{
		GroupID: group.ID,
		Hashes:  group.Hashes,
		Message: fmt.Sprintf("feat: group %d", group.ID),
		NewHash: fmt.Sprintf("f%039d", group.ID),
		Status:  status,
	}, nil
}

func commitData(n int, parent string) gitlib.CommitData {
	return gitlib.CommitData{
		Hash:          fmt.Sprintf("%040d", n),
		ParentHashes:  parents(parent),
		Message:       fmt.Sprintf("wip %d", n),
		Diff:          fmt.Sprintf("+change %d", n),
		ModifiedFiles: []string{"main.go"},
		Author:        "Dev",
		AuthorEmail:   "dev@example.com",
		TreeHash:      fmt.Sprintf("%040d", 1000+n),
	}
}

func parents(parent string) []string {
	if parent == "" {
		return nil
	}

	return []string{parent}
}

func linearHistory(n int) []gitlib.CommitData {
	commits := make([]gitlib.CommitData, n)

	parent := ""
	for i := range n {
		commits[i] = commitData(i, parent)
		parent = commits[i].Hash
	}

	return commits
}

// newController builds a controller over a temp-dir store with singleton
// grouping and a fake processor.
func newController(t *testing.T, git session.GitClient, proc session.GroupProcessor,
	cfg session.Config,
) (*session.Controller, *store.Store) {
	t.Helper()

	if cfg.Branch == "" {
		cfg.Branch = "main"
	}

	if cfg.RepoPath == "" {
		cfg.RepoPath = t.TempDir()
	}

	st, err := store.Open(t.TempDir(), cfg.RepoPath, cfg.Branch, store.NewJSONCodec())
	require.NoError(t, err)

	clst, err := cluster.New(cluster.Config{
		Threshold:         0.8,
		MaxGroupSize:      10,
		RequireContinuity: true,
		DisableMerging:    true,
	})
	require.NoError(t, err)

	return session.NewController(git, st, clst, proc, cfg, nil), st
}

func TestRunFullPipeline(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(3))
	proc := &fakeProcessor{}

	ctrl, st := newController(t, git, proc, session.Config{
		AutoBackup:      true,
		VerifyIntegrity: true,
	})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, session.StateComplete, ctrl.State())
	assert.Equal(t, 3, report.TotalCommits)
	assert.Equal(t, 3, report.ProcessedGroups)
	require.Len(t, git.createdBranches, 1)
	assert.Equal(t, report.BackupRef, git.createdBranches[0])
	assert.Contains(t, report.BackupRef, "backup/main-")

	// Branch moved to the last group's new commit.
	assert.Equal(t, fmt.Sprintf("f%039d", 2), report.NewTip)
	assert.Equal(t, report.NewTip, git.movedTo["main"])
	assert.Equal(t, 1, git.integrityRuns)

	// Every commit mapped, statuses final, cursor past the end.
	stats := st.Stats()
	assert.Equal(t, 3, stats.TotalMappings)
	assert.Equal(t, 3, stats.StatusCounts[store.StatusDone])

	sess, err := st.Session()
	require.NoError(t, err)
	assert.Equal(t, 3, sess.Cursor)
	assert.Equal(t, 3, sess.ProcessedCommits)
}

func TestRunTranslatesParentsThroughMapping(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(2))
	proc := &fakeProcessor{}

	ctrl, _ := newController(t, git, proc, session.Config{})

	_, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	// By the second group, the first commit's rewrite must be visible in the
	// mapping handed to the processor.
	require.Len(t, proc.lastMaps, 2)
	assert.Empty(t, proc.lastMaps[0])
	assert.Equal(t, fmt.Sprintf("f%039d", 0), proc.lastMaps[1][fmt.Sprintf("%040d", 0)])
}

func TestRunResumesAfterFailure(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(3))
	proc := &fakeProcessor{failOn: map[int]int{1: 1}}

	cfg := session.Config{AutoBackup: true, RepoPath: t.TempDir()}
	ctrl, st := newController(t, git, proc, cfg)

	_, err := ctrl.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, session.StateFailed, ctrl.State())

	// Group 0 checkpointed, group 1 not.
	sess, err := st.Session()
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Cursor)

	report, err := ctrl.Resume(context.Background())
	require.NoError(t, err)

	// Groups 0 ran once, 1 twice (failed then retried), 2 once.
	assert.Equal(t, []int{0, 1, 1, 2}, proc.calls)
	assert.Equal(t, 2, report.ProcessedGroups)

	// Backup created exactly once across both runs.
	assert.Len(t, git.createdBranches, 1)

	sess, err = st.Session()
	require.NoError(t, err)
	assert.Equal(t, 3, sess.Cursor)
}

func TestResumeWithoutSession(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(1))
	ctrl, _ := newController(t, git, &fakeProcessor{}, session.Config{})

	_, err := ctrl.Resume(context.Background())
	assert.ErrorIs(t, err, session.ErrNothingToResume)
}

func TestDryRunPersistsAndMutatesNothing(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(3))
	proc := &fakeProcessor{}

	ctrl, st := newController(t, git, proc, session.Config{
		DryRun:     true,
		AutoBackup: true,
	})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.ProcessedGroups)
	assert.Empty(t, report.NewTip)

	// No repository mutation of any kind.
	assert.Empty(t, git.createdBranches)
	assert.Empty(t, git.movedTo)
	assert.Zero(t, git.integrityRuns)

	// No persisted state either.
	assert.False(t, st.HasCommits())
	assert.False(t, st.HasGroups())

	_, err = st.Session()
	assert.ErrorIs(t, err, store.ErrNoSession)
}

func TestRunRefusesDirtyWorkingTree(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(1))
	git.cleanErr = gitlib.ErrDirtyWorkingTree

	ctrl, _ := newController(t, git, &fakeProcessor{}, session.Config{CheckClean: true})

	_, err := ctrl.Run(context.Background())
	assert.ErrorIs(t, err, gitlib.ErrDirtyWorkingTree)
}

func TestRunLockContention(t *testing.T) {
	t.Parallel()

	repoPath := t.TempDir()

	lock, err := session.AcquireLock(repoPath)
	require.NoError(t, err)
	defer lock.Release()

	git := newFakeGit("main", linearHistory(1))
	ctrl, _ := newController(t, git, &fakeProcessor{}, session.Config{RepoPath: repoPath})

	_, err = ctrl.Run(context.Background())
	assert.ErrorIs(t, err, session.ErrSessionLocked)
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	repoPath := t.TempDir()

	lock, err := session.AcquireLock(repoPath)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	// The file stays behind so every process always locks the same inode.
	_, statErr := os.Stat(lock.Path())
	require.NoError(t, statErr)

	again, err := session.AcquireLock(repoPath)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestAnalyzePersistsNothing(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(4))
	ctrl, st := newController(t, git, &fakeProcessor{}, session.Config{})

	report, err := ctrl.Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalCommits)
	assert.Len(t, report.Groups, 4)
	assert.Zero(t, report.MultiGroups)
	assert.False(t, st.HasCommits())
	assert.False(t, st.HasGroups())
}

func TestStatusReflectsProgress(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(2))
	ctrl, _ := newController(t, git, &fakeProcessor{}, session.Config{})

	before := ctrl.Status()
	assert.False(t, before.HasSession)

	_, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	after := ctrl.Status()
	require.True(t, after.HasSession)
	assert.Equal(t, 2, after.Session.Cursor)
	assert.Zero(t, after.RemainingGroups)
	assert.Equal(t, 2, after.Stats.TotalMappings)
}

func TestListBackupsAndRollback(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(2))
	proc := &fakeProcessor{}

	ctrl, st := newController(t, git, proc, session.Config{AutoBackup: true})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	backups, err := ctrl.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, report.BackupRef, backups[0])

	originalTip := fmt.Sprintf("%040d", 1)

	require.NoError(t, ctrl.Rollback(report.BackupRef))

	assert.Equal(t, originalTip, git.branches["main"])
	assert.Equal(t, []string{"refs/heads/main"}, git.resets)
	assert.False(t, st.HasCommits())

	_, err = st.Session()
	assert.ErrorIs(t, err, store.ErrNoSession)
}

func TestRollbackUnknownBackup(t *testing.T) {
	t.Parallel()

	git := newFakeGit("main", linearHistory(1))
	ctrl, _ := newController(t, git, &fakeProcessor{}, session.Config{})

	err := ctrl.Rollback("backup/main-never-existed")
	assert.ErrorIs(t, err, session.ErrNoBackup)
}
