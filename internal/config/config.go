package config

import (
	"errors"
	"strings"
)

// Config is the top-level configuration struct for rehash.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Repository RepositoryConfig `mapstructure:"repository"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	AI         AIConfig         `mapstructure:"ai"`
	Store      StoreConfig      `mapstructure:"store"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	Prompts    PromptsConfig    `mapstructure:"prompts"`
}

// RepositoryConfig selects the repository and branch to rewrite.
type RepositoryConfig struct {
	Path   string `mapstructure:"path"`
	Branch string `mapstructure:"branch"`
}

// BackupConfig controls the pre-run backup branch.
type BackupConfig struct {
	AutoCreate    bool   `mapstructure:"auto_create"`
	NamingPattern string `mapstructure:"naming_pattern"`
}

// ClusteringConfig holds the grouping gates.
type ClusteringConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxGroupSize        int     `mapstructure:"max_group_size"`
	RequireContinuity   bool    `mapstructure:"require_continuity"`
	DisableMerging      bool    `mapstructure:"disable_merging"`
}

// AIConfig holds message-generation settings. An empty APIKey disables the
// model and every message comes from the rule-based fallback.
type AIConfig struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// StoreConfig holds the state store location and codec.
type StoreConfig struct {
	Dir      string `mapstructure:"dir"`
	Compress bool   `mapstructure:"compress"`
}

// SafetyConfig holds the run preconditions and verification flags.
type SafetyConfig struct {
	CheckCleanRepo  bool `mapstructure:"check_clean_repo"`
	CheckRemoteSync bool `mapstructure:"check_remote_sync"`
	VerifyIntegrity bool `mapstructure:"verify_integrity"`
	DryRunDefault   bool `mapstructure:"dry_run_default"`
}

// PromptsConfig holds the prompt templates.
type PromptsConfig struct {
	Rewrite string `mapstructure:"rewrite"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("clustering.similarity_threshold must be between 0 and 1")
	// ErrInvalidMaxGroupSize indicates the group size cap is not positive.
	ErrInvalidMaxGroupSize = errors.New("clustering.max_group_size must be at least 1")
	// ErrInvalidMaxRetries indicates the retry count is not positive.
	ErrInvalidMaxRetries = errors.New("ai.max_retries must be at least 1")
	// ErrInvalidMaxTokens indicates the token limit is not positive.
	ErrInvalidMaxTokens = errors.New("ai.max_tokens must be at least 1")
	// ErrMissingBranch indicates no target branch is configured.
	ErrMissingBranch = errors.New("repository.branch must be set")
	// ErrBadBackupPattern indicates the naming pattern lacks the branch placeholder.
	ErrBadBackupPattern = errors.New("backup.naming_pattern must contain {branch}")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Repository.Branch == "" {
		return ErrMissingBranch
	}

	if c.Clustering.SimilarityThreshold < 0 || c.Clustering.SimilarityThreshold > 1 {
		return ErrInvalidThreshold
	}

	if c.Clustering.MaxGroupSize < 1 {
		return ErrInvalidMaxGroupSize
	}

	if c.AI.MaxRetries < 1 {
		return ErrInvalidMaxRetries
	}

	if c.AI.MaxTokens < 1 {
		return ErrInvalidMaxTokens
	}

	if !strings.Contains(c.Backup.NamingPattern, "{branch}") {
		return ErrBadBackupPattern
	}

	return nil
}
