package rewrite

import (
	"strings"

	"github.com/rehash-tools/rehash/internal/aigen"
)

// conventionalTypes are the prefixes accepted as already-formatted messages.
var conventionalTypes = []string{
	"feat", "fix", "docs", "style", "refactor",
	"test", "chore", "perf", "ci", "build", "revert",
}

// messageRule maps keywords found in commit material to a canned message or
// a conventional prefix.
type messageRule struct {
	keywords []string
	message  string
	prefix   string
}

// fallbackRules pick a whole message when generation is unavailable. Order
// matters: the first matching rule wins.
var fallbackRules = []messageRule{
	{keywords: []string{"fix", "bug", "error", "issue"}, message: "fix: resolve issues"},
	{keywords: []string{"feature", "add", "new", "implement"}, message: "feat: add new feature"},
	{keywords: []string{"refactor", "clean", "improve"}, message: "refactor: improve code"},
	{keywords: []string{"doc", "readme", "comment"}, message: "docs: update documentation"},
	{keywords: []string{"test"}, message: "test: add tests"},
	{keywords: []string{"style", "format", "lint"}, message: "style: format code"},
}

// fallbackDefault is used when no rule matches.
const fallbackDefault = "chore: update files"

// prefixRules choose a conventional prefix for an unprefixed message.
var prefixRules = []messageRule{
	{keywords: []string{"fix", "bug", "error"}, prefix: "fix"},
	{keywords: []string{"feature", "add", "new"}, prefix: "feat"},
	{keywords: []string{"refactor", "clean"}, prefix: "refactor"},
	{keywords: []string{"doc", "readme"}, prefix: "docs"},
	{keywords: []string{"test"}, prefix: "test"},
}

// FallbackMessage derives a deterministic commit message from the original
// messages and diffs when no generated message is available. It always
// returns a non-empty conventional message.
func FallbackMessage(in aigen.Input) string {
	material := strings.ToLower(strings.Join(in.Messages, "\n") + "\n" + strings.Join(in.Diffs, "\n"))

	for _, rule := range fallbackRules {
		if containsAny(material, rule.keywords) {
			return rule.message
		}
	}

	return fallbackDefault
}

// ConventionalFormat normalizes a message to a single conventional commit
// line: the first non-empty line, prefixed with a type when it lacks one.
func ConventionalFormat(message string) string {
	message = firstLine(message)
	if message == "" {
		return fallbackDefault
	}

	lower := strings.ToLower(message)

	for _, prefix := range conventionalTypes {
		if strings.HasPrefix(lower, prefix+":") || strings.HasPrefix(lower, prefix+"(") {
			return message
		}
	}

	for _, rule := range prefixRules {
		if containsAny(lower, rule.keywords) {
			return rule.prefix + ": " + message
		}
	}

	return "chore: " + message
}

// firstLine returns the first non-empty trimmed line of the message.
func firstLine(message string) string {
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}

	return ""
}

// containsAny reports whether s contains any of the keywords.
func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}

	return false
}
