package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rehash-tools/rehash/internal/session"
	"github.com/rehash-tools/rehash/internal/store"
)

// shortHashLen is the abbreviation length for displayed hashes.
const shortHashLen = 8

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	warnColor    = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen)
)

func renderAnalyze(w io.Writer, report session.AnalyzeReport) {
	headerColor.Fprintf(w, "Grouping preview for %s\n", report.Branch)
	fmt.Fprintf(w, "%d commits in %d groups (%d multi-commit)\n\n",
		report.TotalCommits, len(report.Groups), report.MultiGroups)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Group", "Commits", "Min Similarity", "Members"})

	for _, g := range report.Groups {
		tw.AppendRow(table.Row{g.ID, g.Size(), formatSimilarity(g), formatMembers(g)})
	}

	tw.Render()
}

func renderRun(w io.Writer, report session.RunReport) {
	if report.DryRun {
		warnColor.Fprintln(w, "Dry run: no changes were made")
	}

	fmt.Fprintf(w, "Branch %s: %d commits, %d groups, %d processed\n\n",
		report.Branch, report.TotalCommits, report.TotalGroups, report.ProcessedGroups)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Group", "Commits", "Status", "Message", "New Hash"})

	for _, plan := range report.Plans {
		message := plan.Message
		if plan.FallbackUsed {
			message += " (fallback)"
		}

		tw.AppendRow(table.Row{
			plan.GroupID, len(plan.Hashes), plan.Status, message, shortHash(plan.NewHash),
		})
	}

	tw.Render()

	if report.NewTip != "" {
		successColor.Fprintf(w, "\nBranch %s now points at %s\n", report.Branch, shortHash(report.NewTip))
	}

	if report.BackupRef != "" {
		fmt.Fprintf(w, "Backup: %s\n", report.BackupRef)
		fmt.Fprintf(w, "Rollback with: rehash rollback %s\n", report.BackupRef)
	}
}

func renderStatus(w io.Writer, report session.StatusReport) {
	headerColor.Fprintf(w, "Session status for %s\n", report.Branch)

	if !report.HasSession {
		fmt.Fprintln(w, "No session found. Run `rehash run` to start one.")

		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendRow(table.Row{"Commits scanned", report.Stats.TotalCommits})
	tw.AppendRow(table.Row{"Groups", report.Stats.TotalGroups})
	tw.AppendRow(table.Row{"Groups remaining", report.RemainingGroups})
	tw.AppendRow(table.Row{"Commits processed", report.Session.ProcessedCommits})
	tw.AppendRow(table.Row{"Merged", report.Stats.StatusCounts[store.StatusMerged]})
	tw.AppendRow(table.Row{"Done", report.Stats.StatusCounts[store.StatusDone]})
	tw.AppendRow(table.Row{"Backup", orNone(report.Session.BackupRef)})
	tw.AppendRow(table.Row{"Updated", humanize.Time(report.Session.UpdatedAt)})
	tw.Render()

	if report.RemainingGroups > 0 {
		warnColor.Fprintln(w, "Session is interrupted; continue with `rehash resume`.")
	} else {
		successColor.Fprintln(w, "Session is complete.")
	}
}

func renderBackups(w io.Writer, backups []string) {
	if len(backups) == 0 {
		fmt.Fprintln(w, "No backup branches found.")

		return
	}

	headerColor.Fprintln(w, "Backup branches")

	for _, name := range backups {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

// formatSimilarity shows the weakest join score that formed the group.
func formatSimilarity(g store.Group) string {
	if g.Size() < 2 || len(g.Similarities) < 2 {
		return "-"
	}

	lowest := g.Similarities[1]
	for _, s := range g.Similarities[2:] {
		if s < lowest {
			lowest = s
		}
	}

	return fmt.Sprintf("%.2f", lowest)
}

// formatMembers abbreviates the member hashes.
func formatMembers(g store.Group) string {
	parts := make([]string, len(g.Hashes))
	for i, hash := range g.Hashes {
		parts[i] = shortHash(hash)
	}

	return strings.Join(parts, " ")
}

func shortHash(hash string) string {
	if hash == "" {
		return "-"
	}

	if len(hash) <= shortHashLen {
		return hash
	}

	return hash[:shortHashLen]
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}

	return s
}
