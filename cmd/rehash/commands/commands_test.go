package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehash-tools/rehash/cmd/rehash/commands"
	"github.com/rehash-tools/rehash/internal/config"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".rehash.yaml")

	out, err := execute(t, commands.NewInitCommand(), "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Repository.Branch)
	assert.True(t, cfg.Clustering.DisableMerging)
	assert.Equal(t, 3, cfg.AI.MaxRetries)
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".rehash.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repository:\n  branch: keep\n"), 0o600))

	_, err := execute(t, commands.NewInitCommand(), "--output", path)
	assert.ErrorIs(t, err, commands.ErrConfigExists)

	// The original file is untouched.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "keep")
}

func TestInitForceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".rehash.yaml")
	require.NoError(t, os.WriteFile(path, []byte("old: true\n"), 0o600))

	_, err := execute(t, commands.NewInitCommand(), "--output", path, "--force")
	require.NoError(t, err)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Repository.Branch)
}

func TestRunRejectsConflictingModes(t *testing.T) {
	_, err := execute(t, commands.NewRunCommand(), "--dry-run", "--apply")
	assert.ErrorIs(t, err, commands.ErrModeConflict)
}

func TestRunApplyDeclinedAtPrompt(t *testing.T) {
	cmd := commands.NewRunCommand()
	cmd.SetIn(strings.NewReader("n\n"))

	out, err := execute(t, cmd, "--apply")
	require.NoError(t, err)

	// Declining leaves everything untouched; the repository is never opened.
	assert.Contains(t, out, "Rewrite branch")
	assert.Contains(t, out, "Aborted.")
}

func TestRollbackDeclinedAtPrompt(t *testing.T) {
	cmd := commands.NewRollbackCommand()
	cmd.SetIn(strings.NewReader("\n"))

	out, err := execute(t, cmd, "backup/main-20260101-000000")
	require.NoError(t, err)

	assert.Contains(t, out, "Aborted.")
}
