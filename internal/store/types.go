package store

import "time"

// Status is the processing state of a scanned commit.
type Status string

// Commit processing states. A commit moves from pending to merged (member of
// a multi-commit group), rewritten, or done (singleton rename).
const (
	StatusPending   Status = "pending"
	StatusMerged    Status = "merged"
	StatusRewritten Status = "rewritten"
	StatusDone      Status = "done"
)

// Commit is the immutable snapshot of one original history entry. Status is
// the only field that changes after scan time, and only through the store.
type Commit struct {
	Hash           string   `json:"hash"`
	ParentHashes   []string `json:"parent_hashes,omitempty"`
	Message        string   `json:"message"`
	Diff           string   `json:"diff"`
	ModifiedFiles  []string `json:"modified_files,omitempty"`
	Author         string   `json:"author"`
	AuthorEmail    string   `json:"author_email"`
	AuthorTime     int64    `json:"author_time"`
	Committer      string   `json:"committer"`
	CommitterEmail string   `json:"committer_email"`
	CommitterTime  int64    `json:"committer_time"`
	TreeHash       string   `json:"tree_hash"`
	Status         Status   `json:"status"`
}

// IsRoot reports whether the commit has no parents.
func (c Commit) IsRoot() bool {
	return len(c.ParentHashes) == 0
}

// IsMerge reports whether the commit has more than one parent.
func (c Commit) IsMerge() bool {
	return len(c.ParentHashes) > 1
}

// FirstParent returns the first parent hash, or "" for a root commit.
func (c Commit) FirstParent() string {
	if len(c.ParentHashes) == 0 {
		return ""
	}

	return c.ParentHashes[0]
}

// Group is an ordered, non-empty run of original commit hashes destined to
// become exactly one new commit. Similarities holds the score that justified
// each adjacent pairing; the first entry is always 1.
type Group struct {
	ID           int       `json:"id"`
	Hashes       []string  `json:"hashes"`
	Similarities []float64 `json:"similarities"`
}

// Size returns the number of commits in the group.
func (g Group) Size() int {
	return len(g.Hashes)
}

// Session is the singleton record of where a run stands.
type Session struct {
	Branch           string    `json:"branch"`
	BackupRef        string    `json:"backup_ref,omitempty"`
	Cursor           int       `json:"cursor"`
	TotalCommits     int       `json:"total_commits"`
	ProcessedCommits int       `json:"processed_commits"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Stats summarizes store contents for status reporting.
type Stats struct {
	TotalCommits  int
	TotalGroups   int
	TotalMappings int
	StatusCounts  map[Status]int
}
