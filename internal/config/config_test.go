package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehash-tools/rehash/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Repository.Path)
	assert.Equal(t, "main", cfg.Repository.Branch)
	assert.True(t, cfg.Backup.AutoCreate)
	assert.Equal(t, "backup/{branch}-{timestamp}", cfg.Backup.NamingPattern)
	assert.InDelta(t, 0.8, cfg.Clustering.SimilarityThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Clustering.MaxGroupSize)
	assert.True(t, cfg.Clustering.RequireContinuity)
	assert.True(t, cfg.Clustering.DisableMerging)
	assert.Equal(t, 3, cfg.AI.MaxRetries)
	assert.Equal(t, ".rehash", cfg.Store.Dir)
	assert.True(t, cfg.Store.Compress)
	assert.True(t, cfg.Safety.CheckCleanRepo)
	assert.False(t, cfg.Safety.CheckRemoteSync)
	assert.True(t, cfg.Safety.DryRunDefault)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
repository:
  path: /srv/repo
  branch: develop
clustering:
  similarity_threshold: 0.65
  disable_merging: false
ai:
  api_key: sk-test
  model: gpt-4o-mini
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/repo", cfg.Repository.Path)
	assert.Equal(t, "develop", cfg.Repository.Branch)
	assert.InDelta(t, 0.65, cfg.Clustering.SimilarityThreshold, 1e-9)
	assert.False(t, cfg.Clustering.DisableMerging)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Clustering.MaxGroupSize)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REHASH_REPOSITORY_BRANCH", "release")
	t.Setenv("REHASH_AI_API_KEY", "sk-env")

	cfg, err := config.LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Repository.Branch)
	assert.Equal(t, "sk-env", cfg.AI.APIKey)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Repository.Branch)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "threshold out of range",
			content: "clustering:\n  similarity_threshold: 1.5\n",
			wantErr: config.ErrInvalidThreshold,
		},
		{
			name:    "zero group size",
			content: "clustering:\n  max_group_size: 0\n",
			wantErr: config.ErrInvalidMaxGroupSize,
		},
		{
			name:    "zero retries",
			content: "ai:\n  max_retries: 0\n",
			wantErr: config.ErrInvalidMaxRetries,
		},
		{
			name:    "pattern without branch",
			content: "backup:\n  naming_pattern: backup-{timestamp}\n",
			wantErr: config.ErrBadBackupPattern,
		},
		{
			name:    "empty branch",
			content: "repository:\n  branch: \"\"\n",
			wantErr: config.ErrMissingBranch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tc.content))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
