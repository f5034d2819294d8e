package session

import (
	"github.com/rehash-tools/rehash/internal/rewrite"
	"github.com/rehash-tools/rehash/internal/store"
)

// AnalyzeReport is the read-only clustering preview.
type AnalyzeReport struct {
	Branch       string
	TotalCommits int
	Groups       []store.Group
	MultiGroups  int
}

// RunReport summarizes one run, resumed or fresh. In dry-run mode NewTip is
// empty and Plans carry no new hashes.
type RunReport struct {
	Branch           string
	DryRun           bool
	BackupRef        string
	Plans            []rewrite.Plan
	NewTip           string
	TotalCommits     int
	ProcessedCommits int
	TotalGroups      int
	ProcessedGroups  int
}

// StatusReport describes where a session stands.
type StatusReport struct {
	Branch          string
	HasSession      bool
	Session         store.Session
	Stats           store.Stats
	RemainingGroups int
}
