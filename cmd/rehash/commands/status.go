package commands

import (
	"github.com/spf13/cobra"
)

// StatusCommand holds the configuration for the status command.
type StatusCommand struct {
	configPath string
}

// NewStatusCommand creates and configures the status command.
func NewStatusCommand() *cobra.Command {
	sc := &StatusCommand{}

	cobraCmd := &cobra.Command{
		Use:   "status",
		Short: "Show where the current session stands",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}

	addConfigFlag(cobraCmd, &sc.configPath)

	return cobraCmd
}

func (sc *StatusCommand) run(cmd *cobra.Command, _ []string) error {
	app, err := newApp(sc.configPath, true)
	if err != nil {
		return err
	}
	defer app.Close()

	renderStatus(cmd.OutOrStdout(), app.ctrl.Status())

	return nil
}
