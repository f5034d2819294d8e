package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ListBackupsCommand holds the configuration for the list-backups command.
type ListBackupsCommand struct {
	configPath string
}

// NewListBackupsCommand creates and configures the list-backups command.
func NewListBackupsCommand() *cobra.Command {
	lc := &ListBackupsCommand{}

	cobraCmd := &cobra.Command{
		Use:   "list-backups",
		Short: "List backup branches created by previous runs",
		Args:  cobra.NoArgs,
		RunE:  lc.run,
	}

	addConfigFlag(cobraCmd, &lc.configPath)

	return cobraCmd
}

func (lc *ListBackupsCommand) run(cmd *cobra.Command, _ []string) error {
	app, err := newApp(lc.configPath, true)
	if err != nil {
		return err
	}
	defer app.Close()

	backups, listErr := app.ctrl.ListBackups()
	if listErr != nil {
		return listErr
	}

	renderBackups(cmd.OutOrStdout(), backups)

	return nil
}

// RollbackCommand holds the configuration for the rollback command.
type RollbackCommand struct {
	configPath string
	yes        bool
}

// NewRollbackCommand creates and configures the rollback command.
func NewRollbackCommand() *cobra.Command {
	rc := &RollbackCommand{}

	cobraCmd := &cobra.Command{
		Use:   "rollback <backup-ref>",
		Short: "Restore a branch from a backup reference",
		Long: `Rollback moves the configured branch back to the given backup branch,
resets the working tree, and clears all persisted rewrite state. The target
branch must be checked out.`,
		Args: cobra.ExactArgs(1),
		RunE: rc.run,
	}

	addConfigFlag(cobraCmd, &rc.configPath)
	addYesFlag(cobraCmd, &rc.yes)

	return cobraCmd
}

func (rc *RollbackCommand) run(cmd *cobra.Command, args []string) error {
	if !rc.yes {
		question := fmt.Sprintf("Restore from %s and discard the rewritten history?", args[0])
		if !confirm(cmd, question) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")

			return nil
		}
	}

	app, err := newApp(rc.configPath, false)
	if err != nil {
		return err
	}
	defer app.Close()

	rollbackErr := app.ctrl.Rollback(args[0])
	if rollbackErr != nil {
		return rollbackErr
	}

	successColor.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n",
		app.cfg.Repository.Branch, args[0])

	return nil
}
