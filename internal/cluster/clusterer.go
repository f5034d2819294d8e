// Package cluster groups adjacent commits by diff similarity. Groups are
// contiguous runs of the scan order: each commit either extends the group of
// its predecessor or starts a new one, so replaying groups in order rebuilds
// the branch without reordering anyone's work.
package cluster

import (
	"errors"
	"fmt"

	"github.com/rehash-tools/rehash/internal/store"
)

// Config controls the grouping gates.
type Config struct {
	// Threshold is the minimum similarity (exclusive) to join a group.
	Threshold float64
	// MaxGroupSize caps how many commits one group may absorb.
	MaxGroupSize int
	// RequireContinuity restricts joining to commits whose first parent is
	// the previous commit in the group.
	RequireContinuity bool
	// DisableMerging forces every commit into its own group.
	DisableMerging bool
}

// Config validation errors.
var (
	ErrBadThreshold = errors.New("similarity threshold must be in [0,1]")
	ErrBadGroupSize = errors.New("max group size must be at least 1")
)

// Validate checks the config for usable values.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: got %v", ErrBadThreshold, c.Threshold)
	}

	if c.MaxGroupSize < 1 {
		return fmt.Errorf("%w: got %d", ErrBadGroupSize, c.MaxGroupSize)
	}

	return nil
}

// Clusterer partitions a scanned commit sequence into groups.
type Clusterer struct {
	cfg Config
}

// New creates a Clusterer with the given config.
func New(cfg Config) (*Clusterer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Clusterer{cfg: cfg}, nil
}

// Cluster partitions commits (oldest first) into ordered groups. Every commit
// lands in exactly one group, groups preserve the input order, and the result
// is deterministic for a given input and config.
func (c *Clusterer) Cluster(commits []store.Commit) []store.Group {
	groups := make([]store.Group, 0, len(commits))

	var current *store.Group

	for i := range commits {
		commit := commits[i]

		if current != nil {
			score, ok := c.joinScore(*current, commits, i)
			if ok {
				current.Hashes = append(current.Hashes, commit.Hash)
				current.Similarities = append(current.Similarities, score)

				continue
			}
		}

		if current != nil {
			groups = append(groups, *current)
		}

		current = &store.Group{
			ID:           len(groups),
			Hashes:       []string{commit.Hash},
			Similarities: []float64{1},
		}
	}

	if current != nil {
		groups = append(groups, *current)
	}

	return groups
}

// joinScore decides whether commits[i] may join the current group, applying
// the gates in order: structure, continuity, size, then similarity. The
// similarity gate is strict: a score exactly at the threshold starts a new
// group.
func (c *Clusterer) joinScore(current store.Group, commits []store.Commit, i int) (float64, bool) {
	if c.cfg.DisableMerging {
		return 0, false
	}

	commit := commits[i]
	prev := commits[i-1]

	// Roots and merges anchor history shape and are never absorbed.
	if commit.IsRoot() || commit.IsMerge() || prev.IsMerge() {
		return 0, false
	}

	if c.cfg.RequireContinuity && commit.FirstParent() != prev.Hash {
		return 0, false
	}

	if current.Size() >= c.cfg.MaxGroupSize {
		return 0, false
	}

	score := Similarity(prev.Diff, commit.Diff, prev.ModifiedFiles, commit.ModifiedFiles)
	if score <= c.cfg.Threshold {
		return 0, false
	}

	return score, true
}
