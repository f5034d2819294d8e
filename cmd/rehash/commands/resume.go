package commands

import (
	"github.com/spf13/cobra"
)

// ResumeCommand holds the configuration for the resume command.
type ResumeCommand struct {
	configPath string
}

// NewResumeCommand creates and configures the resume command.
func NewResumeCommand() *cobra.Command {
	rc := &ResumeCommand{}

	cobraCmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted run",
		Long: `Resume picks up an interrupted apply run at the first unprocessed group.
Already-completed groups are never re-executed: their hash mappings are read
back from the session state.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	addConfigFlag(cobraCmd, &rc.configPath)

	return cobraCmd
}

func (rc *ResumeCommand) run(cmd *cobra.Command, _ []string) error {
	app, err := newApp(rc.configPath, false)
	if err != nil {
		return err
	}
	defer app.Close()

	report, resumeErr := app.ctrl.Resume(cmd.Context())

	renderRun(cmd.OutOrStdout(), report)

	return resumeErr
}
