package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rehash-tools/rehash/internal/config"
)

// ErrConfigExists indicates the target config file is already present.
var ErrConfigExists = errors.New("config file already exists")

// defaultConfigFile is where init writes the starter configuration.
const defaultConfigFile = ".rehash.yaml"

// configFilePerm is the permission for generated config files. The file may
// carry an API key, so it is owner-only.
const configFilePerm = 0o600

// initDocument mirrors config.Config with yaml tags for a readable starter
// file.
type initDocument struct {
	Repository struct {
		Path   string `yaml:"path"`
		Branch string `yaml:"branch"`
	} `yaml:"repository"`
	Backup struct {
		AutoCreate    bool   `yaml:"auto_create"`
		NamingPattern string `yaml:"naming_pattern"`
	} `yaml:"backup"`
	Clustering struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		MaxGroupSize        int     `yaml:"max_group_size"`
		RequireContinuity   bool    `yaml:"require_continuity"`
		DisableMerging      bool    `yaml:"disable_merging"`
	} `yaml:"clustering"`
	AI struct {
		Provider    string  `yaml:"provider"`
		APIKey      string  `yaml:"api_key"`
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		Temperature float64 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
		MaxRetries  int     `yaml:"max_retries"`
	} `yaml:"ai"`
	Store struct {
		Dir      string `yaml:"dir"`
		Compress bool   `yaml:"compress"`
	} `yaml:"store"`
	Safety struct {
		CheckCleanRepo  bool `yaml:"check_clean_repo"`
		CheckRemoteSync bool `yaml:"check_remote_sync"`
		VerifyIntegrity bool `yaml:"verify_integrity"`
		DryRunDefault   bool `yaml:"dry_run_default"`
	} `yaml:"safety"`
}

// InitCommand holds the configuration for the init command.
type InitCommand struct {
	output string
	force  bool
}

// NewInitCommand creates and configures the init command.
func NewInitCommand() *cobra.Command {
	ic := &InitCommand{}

	cobraCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE:  ic.run,
	}

	cobraCmd.Flags().StringVarP(&ic.output, "output", "o", defaultConfigFile, "where to write the config file")
	cobraCmd.Flags().BoolVar(&ic.force, "force", false, "overwrite an existing config file")

	return cobraCmd
}

func (ic *InitCommand) run(cmd *cobra.Command, _ []string) error {
	if !ic.force {
		_, statErr := os.Stat(ic.output)
		if statErr == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, ic.output)
		}
	}

	data, marshalErr := yaml.Marshal(defaultDocument())
	if marshalErr != nil {
		return fmt.Errorf("marshal config: %w", marshalErr)
	}

	writeErr := os.WriteFile(ic.output, data, configFilePerm)
	if writeErr != nil {
		return fmt.Errorf("write config: %w", writeErr)
	}

	successColor.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", ic.output)
	fmt.Fprintln(cmd.OutOrStdout(), "Set ai.api_key (or REHASH_AI_API_KEY) to enable generated messages.")

	return nil
}

// defaultDocument fills the starter file with the built-in defaults.
func defaultDocument() initDocument {
	var doc initDocument

	doc.Repository.Path = config.DefaultRepositoryPath
	doc.Repository.Branch = config.DefaultBranch

	doc.Backup.AutoCreate = config.DefaultBackupAutoCreate
	doc.Backup.NamingPattern = config.DefaultBackupPattern

	doc.Clustering.SimilarityThreshold = config.DefaultSimilarityThreshold
	doc.Clustering.MaxGroupSize = config.DefaultMaxGroupSize
	doc.Clustering.RequireContinuity = config.DefaultRequireContinuity
	doc.Clustering.DisableMerging = config.DefaultDisableMerging

	doc.AI.Provider = config.DefaultAIProvider
	doc.AI.BaseURL = config.DefaultAIBaseURL
	doc.AI.Model = config.DefaultAIModel
	doc.AI.Temperature = config.DefaultAITemperature
	doc.AI.MaxTokens = config.DefaultAIMaxTokens
	doc.AI.MaxRetries = config.DefaultAIMaxRetries

	doc.Store.Dir = config.DefaultStoreDir
	doc.Store.Compress = config.DefaultStoreCompress

	doc.Safety.CheckCleanRepo = config.DefaultCheckCleanRepo
	doc.Safety.CheckRemoteSync = config.DefaultCheckRemoteSync
	doc.Safety.VerifyIntegrity = config.DefaultVerifyIntegrity
	doc.Safety.DryRunDefault = config.DefaultDryRunDefault

	return doc
}
