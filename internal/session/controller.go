// Package session drives the rewrite pipeline: scan, cluster, execute,
// verify. It owns the session lock, the backup branch, and the resume logic;
// every group is durably checkpointed before the next one starts, so an
// interruption at any point resumes from the last completed group.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rehash-tools/rehash/internal/cluster"
	"github.com/rehash-tools/rehash/internal/rewrite"
	"github.com/rehash-tools/rehash/internal/store"
	"github.com/rehash-tools/rehash/pkg/gitlib"
)

// State is the controller's pipeline position.
type State string

// Pipeline states. Interrupted runs have no dedicated state: they are a
// persisted cursor below the group count.
const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateClustering State = "clustering"
	StateExecuting  State = "executing"
	StateVerifying  State = "verifying"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Controller errors.
var (
	// ErrNoBackup indicates the requested backup branch does not exist.
	ErrNoBackup = errors.New("backup branch not found")
	// ErrMappingIncomplete indicates a scanned commit was never mapped.
	ErrMappingIncomplete = errors.New("hash mapping does not cover every scanned commit")
	// ErrNothingToResume indicates resume was requested without a session.
	ErrNothingToResume = errors.New("no interrupted session to resume")
	// ErrMissingCommit indicates a group references an unscanned commit.
	ErrMissingCommit = errors.New("group references a commit missing from the scan")
)

// Backup naming defaults.
const (
	defaultBackupPattern  = "backup/{branch}-{timestamp}"
	backupTimestampLayout = "20060102-150405"
)

// GitClient is the repository surface the controller drives. Implemented by
// gitlib.Repository.
type GitClient interface {
	ListCommits(ctx context.Context, branch string) ([]gitlib.CommitData, error)
	BranchTip(branch string) (string, error)
	CheckClean() error
	CheckUpstreamSync(branch string) error
	CreateBranchRef(name, atHash string) error
	MoveBranch(name, toHash string) error
	ResetBranch(toRef string) error
	ListBranches(prefix string) ([]string, error)
	CheckIntegrity(branch string) error
}

// GroupProcessor rewrites one group. Implemented by rewrite.Engine.
type GroupProcessor interface {
	ProcessGroup(ctx context.Context, group store.Group, commits []store.Commit,
		mapping map[string]string) (rewrite.Plan, error)
}

// Config controls one controller instance.
type Config struct {
	RepoPath        string
	Branch          string
	DryRun          bool
	AutoBackup      bool
	BackupPattern   string
	CheckClean      bool
	CheckSync       bool
	VerifyIntegrity bool
}

// Controller coordinates store, clusterer, engine and repository for one
// branch.
type Controller struct {
	git   GitClient
	st    *store.Store
	clst  *cluster.Clusterer
	eng   GroupProcessor
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
	state State
}

// NewController wires a controller. log may be nil for the default logger.
func NewController(
	git GitClient,
	st *store.Store,
	clst *cluster.Clusterer,
	eng GroupProcessor,
	cfg Config,
	log *slog.Logger,
) *Controller {
	if cfg.BackupPattern == "" {
		cfg.BackupPattern = defaultBackupPattern
	}

	if log == nil {
		log = slog.Default()
	}

	return &Controller{
		git:   git,
		st:    st,
		clst:  clst,
		eng:   eng,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: StateIdle,
	}
}

// State returns the controller's current pipeline state.
func (c *Controller) State() State {
	return c.state
}

// Analyze produces the clustering preview without persisting anything and
// without touching the repository beyond reads.
func (c *Controller) Analyze(ctx context.Context) (AnalyzeReport, error) {
	report := AnalyzeReport{Branch: c.cfg.Branch}

	c.state = StateScanning

	commits, err := c.scan(ctx, false)
	if err != nil {
		c.state = StateFailed

		return report, err
	}

	report.TotalCommits = len(commits)

	c.state = StateClustering

	if c.st.HasGroups() {
		report.Groups = c.st.Groups()
	} else {
		report.Groups = c.clst.Cluster(commits)
	}

	for _, g := range report.Groups {
		if g.Size() > 1 {
			report.MultiGroups++
		}
	}

	c.state = StateIdle

	return report, nil
}

// Run executes the pipeline from wherever the persisted cursor stands. A
// fresh run starts at group zero; an interrupted one continues. In dry-run
// mode the full plan is computed and reported but neither the repository nor
// the persisted state changes.
func (c *Controller) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{Branch: c.cfg.Branch, DryRun: c.cfg.DryRun}

	lock, lockErr := AcquireLock(c.cfg.RepoPath)
	if lockErr != nil {
		return report, lockErr
	}
	defer lock.Release()

	apply := !c.cfg.DryRun

	if apply {
		safetyErr := c.checkSafety()
		if safetyErr != nil {
			c.state = StateFailed

			return report, safetyErr
		}
	}

	c.state = StateScanning

	commits, scanErr := c.scan(ctx, apply)
	if scanErr != nil {
		c.state = StateFailed

		return report, scanErr
	}

	report.TotalCommits = len(commits)

	if len(commits) == 0 {
		c.state = StateComplete

		return report, nil
	}

	c.state = StateClustering

	groups, groupErr := c.clusterGroups(commits, apply)
	if groupErr != nil {
		c.state = StateFailed

		return report, groupErr
	}

	report.TotalGroups = len(groups)

	sess, sessErr := c.prepareSession(apply, len(commits))
	if sessErr != nil {
		c.state = StateFailed

		return report, sessErr
	}

	report.BackupRef = sess.BackupRef

	c.state = StateExecuting

	execErr := c.executeGroups(ctx, &report, groups, commits, sess.Cursor, apply)
	if execErr != nil {
		c.state = StateFailed

		return report, execErr
	}

	if apply {
		finishErr := c.finishRun(&report, commits)
		if finishErr != nil {
			c.state = StateFailed

			return report, finishErr
		}
	}

	c.state = StateComplete

	return report, nil
}

// Resume continues an interrupted apply run. It refuses to start from
// scratch: a session must already exist.
func (c *Controller) Resume(ctx context.Context) (RunReport, error) {
	_, err := c.st.Session()
	if err != nil {
		return RunReport{Branch: c.cfg.Branch}, ErrNothingToResume
	}

	return c.Run(ctx)
}

// Status reports the persisted session without touching the repository.
func (c *Controller) Status() StatusReport {
	report := StatusReport{
		Branch: c.cfg.Branch,
		Stats:  c.st.Stats(),
	}

	sess, err := c.st.Session()
	if err == nil {
		report.HasSession = true
		report.Session = sess
		report.RemainingGroups = report.Stats.TotalGroups - sess.Cursor
	}

	return report
}

// ListBackups returns the backup branches matching the configured naming
// pattern's fixed prefix.
func (c *Controller) ListBackups() ([]string, error) {
	return c.git.ListBranches(backupPrefix(c.cfg.BackupPattern))
}

// Rollback moves the target branch back to a backup reference, resets the
// working tree to it, and drops all persisted rewrite state. It assumes the
// target branch is checked out, which is the same assumption the run itself
// makes.
func (c *Controller) Rollback(backupRef string) error {
	lock, lockErr := AcquireLock(c.cfg.RepoPath)
	if lockErr != nil {
		return lockErr
	}
	defer lock.Release()

	tip, tipErr := c.git.BranchTip(backupRef)
	if tipErr != nil {
		return fmt.Errorf("%w: %s", ErrNoBackup, backupRef)
	}

	moveErr := c.git.MoveBranch(c.cfg.Branch, tip)
	if moveErr != nil {
		return fmt.Errorf("restore branch: %w", moveErr)
	}

	resetErr := c.git.ResetBranch("refs/heads/" + c.cfg.Branch)
	if resetErr != nil {
		return fmt.Errorf("reset working tree: %w", resetErr)
	}

	c.log.Info("rolled back", "branch", c.cfg.Branch, "backup", backupRef)

	return c.st.Reset()
}

// checkSafety runs the configured preconditions for an apply run.
func (c *Controller) checkSafety() error {
	if c.cfg.CheckClean {
		err := c.git.CheckClean()
		if err != nil {
			return err
		}
	}

	if c.cfg.CheckSync {
		err := c.git.CheckUpstreamSync(c.cfg.Branch)
		if err != nil {
			return err
		}
	}

	return nil
}

// scan returns the branch commits oldest first, reusing a persisted scan when
// one exists. With persist set, a fresh scan is written to the store.
func (c *Controller) scan(ctx context.Context, persist bool) ([]store.Commit, error) {
	if c.st.HasCommits() {
		return c.st.Commits(), nil
	}

	data, err := c.git.ListCommits(ctx, c.cfg.Branch)
	if err != nil {
		return nil, fmt.Errorf("scan branch %s: %w", c.cfg.Branch, err)
	}

	commits := make([]store.Commit, len(data))
	for i, d := range data {
		commits[i] = toStoreCommit(d)
	}

	if persist {
		putErr := c.st.PutCommits(commits)
		if putErr != nil {
			return nil, putErr
		}
	}

	c.log.Info("scanned branch", "branch", c.cfg.Branch, "commits", len(commits))

	return commits, nil
}

// clusterGroups returns the persisted grouping when execution already started
// from one, otherwise clusters afresh.
func (c *Controller) clusterGroups(commits []store.Commit, persist bool) ([]store.Group, error) {
	if c.st.HasGroups() {
		return c.st.Groups(), nil
	}

	groups := c.clst.Cluster(commits)

	if persist {
		putErr := c.st.PutGroups(groups)
		if putErr != nil {
			return nil, putErr
		}
	}

	c.log.Info("clustered commits", "groups", len(groups))

	return groups, nil
}

// prepareSession loads or creates the session record and creates the backup
// branch exactly once, before the first group executes. Dry runs get an
// in-memory session and never create the backup.
func (c *Controller) prepareSession(apply bool, totalCommits int) (store.Session, error) {
	sess, err := c.st.Session()
	if errors.Is(err, store.ErrNoSession) {
		sess = store.Session{Branch: c.cfg.Branch, TotalCommits: totalCommits}
	} else if err != nil {
		return store.Session{}, err
	}

	if !apply {
		return sess, nil
	}

	if c.cfg.AutoBackup && sess.BackupRef == "" && sess.Cursor == 0 {
		backupErr := c.createBackup(&sess)
		if backupErr != nil {
			return store.Session{}, backupErr
		}
	}

	putErr := c.st.PutSession(sess)
	if putErr != nil {
		return store.Session{}, putErr
	}

	return sess, nil
}

// createBackup snapshots the branch tip under the configured naming pattern.
func (c *Controller) createBackup(sess *store.Session) error {
	tip, tipErr := c.git.BranchTip(c.cfg.Branch)
	if tipErr != nil {
		return tipErr
	}

	name := expandBackupPattern(c.cfg.BackupPattern, c.cfg.Branch, c.now())

	createErr := c.git.CreateBranchRef(name, tip)
	if createErr != nil {
		return fmt.Errorf("create backup branch: %w", createErr)
	}

	sess.BackupRef = name

	c.log.Info("created backup branch", "backup", name, "tip", tip)

	return nil
}

// executeGroups processes groups from the cursor onward. Each applied group
// is checkpointed before the next starts; in dry-run mode members of planned
// groups are mapped to placeholders so later parent resolution still shows
// the dependency.
func (c *Controller) executeGroups(
	ctx context.Context,
	report *RunReport,
	groups []store.Group,
	commits []store.Commit,
	cursor int,
	apply bool,
) error {
	index := make(map[string]store.Commit, len(commits))
	for _, commit := range commits {
		index[commit.Hash] = commit
	}

	mapping := c.st.Mapping()

	for i := cursor; i < len(groups); i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		group := groups[i]

		members, memberErr := groupMembers(group, index)
		if memberErr != nil {
			return memberErr
		}

		plan, planErr := c.eng.ProcessGroup(ctx, group, members, mapping)
		if planErr != nil {
			return fmt.Errorf("group %d: %w", group.ID, planErr)
		}

		if apply {
			applyErr := c.st.ApplyGroupResult(plan.Result())
			if applyErr != nil {
				return fmt.Errorf("checkpoint group %d: %w", group.ID, applyErr)
			}
		}

		newHash := plan.NewHash
		if newHash == "" {
			newHash = fmt.Sprintf("(planned group %d)", group.ID)
		}

		for _, hash := range group.Hashes {
			mapping[hash] = newHash
		}

		report.Plans = append(report.Plans, plan)
		report.ProcessedGroups++
		report.ProcessedCommits += group.Size()
	}

	return nil
}

// finishRun moves the branch to the rewritten tip and verifies the result.
func (c *Controller) finishRun(report *RunReport, commits []store.Commit) error {
	tipHash := commits[len(commits)-1].Hash

	newTip, ok := c.st.MappedHash(tipHash)
	if !ok {
		return fmt.Errorf("%w: branch tip %s", ErrMappingIncomplete, tipHash)
	}

	moveErr := c.git.MoveBranch(c.cfg.Branch, newTip)
	if moveErr != nil {
		return fmt.Errorf("move branch to rewritten tip: %w", moveErr)
	}

	report.NewTip = newTip

	c.state = StateVerifying

	verifyErr := c.verify(commits)
	if verifyErr != nil {
		return verifyErr
	}

	c.log.Info("run complete", "branch", c.cfg.Branch, "new_tip", newTip)

	return nil
}

// verify checks mapping totality and, when configured, walks the rewritten
// branch for structural integrity.
func (c *Controller) verify(commits []store.Commit) error {
	for _, commit := range commits {
		_, ok := c.st.MappedHash(commit.Hash)
		if !ok {
			return fmt.Errorf("%w: commit %s", ErrMappingIncomplete, commit.Hash)
		}
	}

	if c.cfg.VerifyIntegrity {
		err := c.git.CheckIntegrity(c.cfg.Branch)
		if err != nil {
			return err
		}
	}

	return nil
}

// groupMembers resolves a group's hashes against the scanned commits.
func groupMembers(group store.Group, index map[string]store.Commit) ([]store.Commit, error) {
	members := make([]store.Commit, 0, group.Size())

	for _, hash := range group.Hashes {
		commit, ok := index[hash]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingCommit, hash)
		}

		members = append(members, commit)
	}

	return members, nil
}

// toStoreCommit converts scanned metadata into the persisted commit shape.
func toStoreCommit(d gitlib.CommitData) store.Commit {
	return store.Commit{
		Hash:           d.Hash,
		ParentHashes:   d.ParentHashes,
		Message:        d.Message,
		Diff:           d.Diff,
		ModifiedFiles:  d.ModifiedFiles,
		Author:         d.Author,
		AuthorEmail:    d.AuthorEmail,
		AuthorTime:     d.AuthorTime,
		Committer:      d.Committer,
		CommitterEmail: d.CommitterEmail,
		CommitterTime:  d.CommitterTime,
		TreeHash:       d.TreeHash,
		Status:         store.StatusPending,
	}
}

// expandBackupPattern fills the {branch} and {timestamp} placeholders.
func expandBackupPattern(pattern, branch string, t time.Time) string {
	name := strings.ReplaceAll(pattern, "{branch}", branch)

	return strings.ReplaceAll(name, "{timestamp}", t.Format(backupTimestampLayout))
}

// backupPrefix is the fixed part of the naming pattern before the first
// placeholder, used to list existing backups.
func backupPrefix(pattern string) string {
	if i := strings.IndexByte(pattern, '{'); i >= 0 {
		return pattern[:i]
	}

	return pattern
}
