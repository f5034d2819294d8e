// Package main provides the entry point for the rehash CLI tool.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rehash-tools/rehash/cmd/rehash/commands"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "rehash",
		Short: "Rehash - AI-assisted git history rewriting",
		Long: `Rehash rewrites a linear git history into a cleaner one: it groups
related consecutive commits, replaces each group's messages with a single
AI-generated conventional commit message, and produces a new, hash-remapped
history while keeping the original commits recoverable via a backup branch.

Commands:
  analyze       Preview the commit grouping without changing anything
  run           Execute the rewrite (dry-run by default)
  resume        Continue an interrupted run
  status        Show where the current session stands
  list-backups  List backup branches created by previous runs
  rollback      Restore a branch from a backup reference
  init          Write a starter configuration file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogging()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add commands.
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewResumeCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewListBackupsCommand())
	rootCmd.AddCommand(commands.NewRollbackCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configureLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rehash %s\n", version)
		},
	}
}
