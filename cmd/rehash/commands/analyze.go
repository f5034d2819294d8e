package commands

import (
	"github.com/spf13/cobra"
)

// AnalyzeCommand holds the configuration for the analyze command.
type AnalyzeCommand struct {
	configPath string
}

// NewAnalyzeCommand creates and configures the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	ac := &AnalyzeCommand{}

	cobraCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Preview the commit grouping without changing anything",
		Long: `Analyze scans the configured branch, clusters adjacent commits by diff
similarity, and prints the resulting groups. Nothing is persisted and the
repository is only read.`,
		Args: cobra.NoArgs,
		RunE: ac.run,
	}

	addConfigFlag(cobraCmd, &ac.configPath)

	return cobraCmd
}

func (ac *AnalyzeCommand) run(cmd *cobra.Command, _ []string) error {
	app, err := newApp(ac.configPath, true)
	if err != nil {
		return err
	}
	defer app.Close()

	report, analyzeErr := app.ctrl.Analyze(cmd.Context())
	if analyzeErr != nil {
		return analyzeErr
	}

	renderAnalyze(cmd.OutOrStdout(), report)

	return nil
}
