// Package config loads rehash settings from file, environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".rehash"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for rehash settings.
const envPrefix = "REHASH"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Defaults for every configurable knob.
const (
	DefaultRepositoryPath      = "."
	DefaultBranch              = "main"
	DefaultBackupAutoCreate    = true
	DefaultBackupPattern       = "backup/{branch}-{timestamp}"
	DefaultSimilarityThreshold = 0.8
	DefaultMaxGroupSize        = 10
	DefaultRequireContinuity   = true
	DefaultDisableMerging      = true
	DefaultAIProvider          = "deepseek"
	DefaultAIBaseURL           = "https://api.deepseek.com/v1"
	DefaultAIModel             = "deepseek-chat"
	DefaultAITemperature       = 0.3
	DefaultAIMaxTokens         = 1000
	DefaultAIMaxRetries        = 3
	DefaultStoreDir            = ".rehash"
	DefaultStoreCompress       = true
	DefaultCheckCleanRepo      = true
	DefaultCheckRemoteSync     = false
	DefaultVerifyIntegrity     = true
	DefaultDryRunDefault       = true
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) && !os.IsNotExist(readErr) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("repository.path", DefaultRepositoryPath)
	viperCfg.SetDefault("repository.branch", DefaultBranch)

	viperCfg.SetDefault("backup.auto_create", DefaultBackupAutoCreate)
	viperCfg.SetDefault("backup.naming_pattern", DefaultBackupPattern)

	viperCfg.SetDefault("clustering.similarity_threshold", DefaultSimilarityThreshold)
	viperCfg.SetDefault("clustering.max_group_size", DefaultMaxGroupSize)
	viperCfg.SetDefault("clustering.require_continuity", DefaultRequireContinuity)
	viperCfg.SetDefault("clustering.disable_merging", DefaultDisableMerging)

	viperCfg.SetDefault("ai.provider", DefaultAIProvider)
	viperCfg.SetDefault("ai.api_key", "")
	viperCfg.SetDefault("ai.base_url", DefaultAIBaseURL)
	viperCfg.SetDefault("ai.model", DefaultAIModel)
	viperCfg.SetDefault("ai.temperature", DefaultAITemperature)
	viperCfg.SetDefault("ai.max_tokens", DefaultAIMaxTokens)
	viperCfg.SetDefault("ai.max_retries", DefaultAIMaxRetries)

	viperCfg.SetDefault("store.dir", DefaultStoreDir)
	viperCfg.SetDefault("store.compress", DefaultStoreCompress)

	viperCfg.SetDefault("safety.check_clean_repo", DefaultCheckCleanRepo)
	viperCfg.SetDefault("safety.check_remote_sync", DefaultCheckRemoteSync)
	viperCfg.SetDefault("safety.verify_integrity", DefaultVerifyIntegrity)
	viperCfg.SetDefault("safety.dry_run_default", DefaultDryRunDefault)

	viperCfg.SetDefault("prompts.rewrite", "")
}
