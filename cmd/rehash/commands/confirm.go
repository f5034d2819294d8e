package commands

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"
)

// addYesFlag registers the shared --yes flag on commands that mutate the
// repository.
func addYesFlag(cmd *cobra.Command, target *bool) {
	cmd.Flags().BoolVarP(target, "yes", "y", false, "skip the confirmation prompt")
}

// confirm asks a y/N question on the command's streams. Anything but an
// explicit yes declines, EOF included.
func confirm(cmd *cobra.Command, question string) bool {
	warnColor.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes"
}
