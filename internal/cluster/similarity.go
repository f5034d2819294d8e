package cluster

import (
	"path"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Similarity weighting: which paths a commit touches says a lot about
// relatedness even when the text differs, but the text still dominates.
const (
	pathWeight = 0.4
	diffWeight = 0.6
)

// similarityInputCap bounds the text fed to the character-level ratio.
// Large diffs are compared by their head; the line-set component still sees
// the full text.
const similarityInputCap = 4096

// diffPrefixes are patch framing lines excluded from line-set comparison.
var diffPrefixes = []string{"+++", "---", "@@"}

// Similarity scores how related two commits look, in [0,1]. It is a weighted
// blend of directory overlap and diff-text similarity, deterministic and
// symmetric: identical inputs always produce identical scores, and swapping
// the two commits never changes the result.
func Similarity(diff1, diff2 string, files1, files2 []string) float64 {
	pathSim := pathSimilarity(files1, files2)
	diffSim := diffSimilarity(diff1, diff2)

	return pathWeight*pathSim + diffWeight*diffSim
}

// diffSimilarity averages a character-level edit ratio and a line-set
// Jaccard over the two patches.
func diffSimilarity(diff1, diff2 string) float64 {
	if diff1 == "" || diff2 == "" {
		return 0
	}

	return (textRatio(diff1, diff2) + lineSimilarity(diff1, diff2)) / 2
}

// textRatio computes 1 - levenshtein/maxLen over the truncated diff texts
// using diffmatchpatch. The diff timeout is disabled so the result never
// depends on machine load.
func textRatio(text1, text2 string) float64 {
	text1 = truncate(text1, similarityInputCap)
	text2 = truncate(text2, similarityInputCap)

	// The edit script depends on argument order; a canonical order keeps the
	// ratio symmetric.
	if text1 > text2 {
		text1, text2 = text2, text1
	}

	longest := max(len(text1), len(text2))
	if longest == 0 {
		return 1
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	diffs := dmp.DiffMain(text1, text2, false)
	distance := dmp.DiffLevenshtein(diffs)

	ratio := 1 - float64(distance)/float64(longest)
	if ratio < 0 {
		return 0
	}

	return ratio
}

// lineSimilarity is the Jaccard index over the sets of content lines, with
// patch framing (file headers, hunk markers) and blank lines filtered out.
func lineSimilarity(diff1, diff2 string) float64 {
	set1 := contentLines(diff1)
	set2 := contentLines(diff2)

	if len(set1) == 0 && len(set2) == 0 {
		return 1
	}

	return jaccard(set1, set2)
}

// contentLines collects the meaningful lines of a patch.
func contentLines(diff string) map[string]struct{} {
	set := map[string]struct{}{}

	for _, line := range strings.Split(diff, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if hasAnyPrefix(line, diffPrefixes) {
			continue
		}

		set[line] = struct{}{}
	}

	return set
}

// pathSimilarity is the Jaccard index over the sets of directories the two
// commits touch.
func pathSimilarity(files1, files2 []string) float64 {
	if len(files1) == 0 || len(files2) == 0 {
		return 0
	}

	dirs1 := dirSet(files1)
	dirs2 := dirSet(files2)

	if len(dirs1) == 0 && len(dirs2) == 0 {
		return 1
	}

	return jaccard(dirs1, dirs2)
}

// dirSet maps file paths to their containing directories.
func dirSet(files []string) map[string]struct{} {
	set := make(map[string]struct{}, len(files))
	for _, file := range files {
		set[path.Dir(file)] = struct{}{}
	}

	return set
}

// jaccard computes |a∩b| / |a∪b| for two string sets.
func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0

	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// hasAnyPrefix reports whether s starts with any of the given prefixes.
func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

// truncate cuts s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
