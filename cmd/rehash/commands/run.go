package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rehash-tools/rehash/internal/config"
)

// ErrModeConflict indicates both --dry-run and --apply were given.
var ErrModeConflict = errors.New("--dry-run and --apply are mutually exclusive")

// RunCommand holds the configuration for the run command.
type RunCommand struct {
	configPath string
	dryRun     bool
	apply      bool
	yes        bool
}

// NewRunCommand creates and configures the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cobraCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the rewrite (dry-run by default)",
		Long: `Run scans the branch, clusters commits, and rewrites each group into a
single new commit with an AI-generated conventional message. Unless --apply
is given (and the configuration defaults to dry-run), the full plan is
computed and printed without mutating the repository.

Apply mode creates a backup branch first; every completed group is
checkpointed, so an interrupted run continues with 'rehash resume'.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	addConfigFlag(cobraCmd, &rc.configPath)
	addYesFlag(cobraCmd, &rc.yes)
	cobraCmd.Flags().BoolVar(&rc.dryRun, "dry-run", false, "compute and print the plan without changing anything")
	cobraCmd.Flags().BoolVar(&rc.apply, "apply", false, "apply the rewrite to the repository")

	return cobraCmd
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) error {
	if rc.dryRun && rc.apply {
		return ErrModeConflict
	}

	cfg, cfgErr := config.LoadConfig(rc.configPath)
	if cfgErr != nil {
		return cfgErr
	}

	dryRun := rc.dryRun
	if !rc.dryRun && !rc.apply {
		dryRun = cfg.Safety.DryRunDefault
	}

	if !dryRun && !rc.yes {
		question := fmt.Sprintf("Rewrite branch %q in place?", cfg.Repository.Branch)
		if !confirm(cmd, question) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")

			return nil
		}
	}

	app, err := newAppFromConfig(cfg, dryRun)
	if err != nil {
		return err
	}
	defer app.Close()

	report, runErr := app.ctrl.Run(cmd.Context())

	renderRun(cmd.OutOrStdout(), report)

	return runErr
}
