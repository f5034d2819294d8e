// Package commands implements the rehash CLI subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rehash-tools/rehash/internal/aigen"
	"github.com/rehash-tools/rehash/internal/cluster"
	"github.com/rehash-tools/rehash/internal/config"
	"github.com/rehash-tools/rehash/internal/rewrite"
	"github.com/rehash-tools/rehash/internal/session"
	"github.com/rehash-tools/rehash/internal/store"
	"github.com/rehash-tools/rehash/pkg/gitlib"
)

// app bundles the wired components for one command invocation.
type app struct {
	cfg  *config.Config
	repo *gitlib.Repository
	st   *store.Store
	ctrl *session.Controller
}

// addConfigFlag registers the shared --config flag.
func addConfigFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "config", "c", "", "config file path (default: .rehash.yaml in CWD or $HOME)")
}

// newApp loads configuration and wires repository, store, clusterer, engine,
// and controller. Close must be called when done.
func newApp(configPath string, dryRun bool) (*app, error) {
	cfg, cfgErr := config.LoadConfig(configPath)
	if cfgErr != nil {
		return nil, cfgErr
	}

	return newAppFromConfig(cfg, dryRun)
}

// newAppFromConfig wires the components for an already-loaded configuration.
func newAppFromConfig(cfg *config.Config, dryRun bool) (*app, error) {
	repoPath, absErr := filepath.Abs(cfg.Repository.Path)
	if absErr != nil {
		return nil, fmt.Errorf("resolve repository path: %w", absErr)
	}

	repo, repoErr := gitlib.OpenRepository(repoPath)
	if repoErr != nil {
		return nil, repoErr
	}

	st, storeErr := openStore(cfg, repoPath)
	if storeErr != nil {
		repo.Free()

		return nil, storeErr
	}

	clst, clstErr := cluster.New(cluster.Config{
		Threshold:         cfg.Clustering.SimilarityThreshold,
		MaxGroupSize:      cfg.Clustering.MaxGroupSize,
		RequireContinuity: cfg.Clustering.RequireContinuity,
		DisableMerging:    cfg.Clustering.DisableMerging,
	})
	if clstErr != nil {
		repo.Free()

		return nil, clstErr
	}

	gen, genErr := newGenerator(cfg)
	if genErr != nil {
		repo.Free()

		return nil, genErr
	}

	logger := slog.Default()

	engine := rewrite.NewEngine(repo, gen, rewrite.Config{
		MaxRetries: cfg.AI.MaxRetries,
		DryRun:     dryRun,
	}, logger)

	ctrl := session.NewController(repo, st, clst, engine, session.Config{
		RepoPath:        repoPath,
		Branch:          cfg.Repository.Branch,
		DryRun:          dryRun,
		AutoBackup:      cfg.Backup.AutoCreate,
		BackupPattern:   cfg.Backup.NamingPattern,
		CheckClean:      cfg.Safety.CheckCleanRepo,
		CheckSync:       cfg.Safety.CheckRemoteSync,
		VerifyIntegrity: cfg.Safety.VerifyIntegrity,
	}, logger)

	return &app{cfg: cfg, repo: repo, st: st, ctrl: ctrl}, nil
}

// openStore opens the per-branch state store under the configured directory,
// resolved relative to the repository when not absolute.
func openStore(cfg *config.Config, repoPath string) (*store.Store, error) {
	dir := cfg.Store.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoPath, dir)
	}

	var codec store.Codec = store.NewJSONCodec()
	if cfg.Store.Compress {
		codec = store.NewLZ4Codec()
	}

	return store.Open(dir, repoPath, cfg.Repository.Branch, codec)
}

// newGenerator builds the message generator, or nil when no API key is
// configured so the rule-based fallback takes over.
func newGenerator(cfg *config.Config) (aigen.Generator, error) {
	if cfg.AI.APIKey == "" {
		return nil, nil
	}

	return aigen.NewClient(aigen.ClientConfig{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Prompt:      cfg.Prompts.Rewrite,
	})
}

// Close releases repository resources.
func (a *app) Close() {
	a.repo.Free()
}
