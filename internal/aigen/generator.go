// Package aigen turns commit diffs into candidate commit messages using a
// chat-completion model. It only produces text; retry policy and fallbacks
// belong to the caller.
package aigen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// diffInputCap bounds how much of each diff is sent to the model.
const diffInputCap = 2000

// emptyDiffPlaceholder stands in for commits with no textual change.
const emptyDiffPlaceholder = "(no code changes)"

// ErrEmptyCompletion indicates the model returned no usable text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// DefaultPromptTemplate asks for one conventional commit line describing the
// combined change. Overridable via configuration.
const DefaultPromptTemplate = `Analyze the following code changes and write one concise conventional commit message.

Code changes:
{{.Diffs}}

Modified files:
{{.Files}}

Original commit messages (reference only):
{{.Messages}}

Requirements:
1. Use the conventional commit format (feat/fix/refactor/docs/test/style/chore).
2. Describe the actual code change, not the original messages.
3. Keep it to a single line.`

// Input is the material the prompt is rendered from: one entry per original
// commit, in history order.
type Input struct {
	// Diffs holds the patch text per commit.
	Diffs []string
	// Hashes labels each diff; may be empty for single-commit input.
	Hashes []string
	// Files is the union of touched paths.
	Files []string
	// Messages holds the original commit messages.
	Messages []string
}

// Generator produces a commit message for a change set.
type Generator interface {
	Generate(ctx context.Context, in Input) (string, error)
}

// Prompt renders a prompt template against the input. The template sees
// three string fields: Diffs, Files and Messages.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses the template text. An empty text selects the default
// template.
func NewPrompt(text string) (*Prompt, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}

	tmpl, err := template.New("prompt").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return &Prompt{tmpl: tmpl}, nil
}

// Render produces the final prompt text for the input.
func (p *Prompt) Render(in Input) (string, error) {
	data := struct {
		Diffs    string
		Files    string
		Messages string
	}{
		Diffs:    formatDiffs(in),
		Files:    formatFiles(in.Files),
		Messages: strings.Join(in.Messages, "\n"),
	}

	var sb strings.Builder

	err := p.tmpl.Execute(&sb, data)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	return sb.String(), nil
}

// formatDiffs truncates each diff and labels it with its short hash when the
// input spans several commits.
func formatDiffs(in Input) string {
	parts := make([]string, 0, len(in.Diffs))

	for i, diff := range in.Diffs {
		part := truncateDiff(diff)

		if len(in.Diffs) > 1 && i < len(in.Hashes) {
			part = fmt.Sprintf("Commit %s:\n%s", shortHash(in.Hashes[i]), part)
		}

		parts = append(parts, part)
	}

	return strings.Join(parts, "\n\n")
}

// formatFiles renders the touched paths as a bullet list.
func formatFiles(files []string) string {
	if len(files) == 0 {
		return "(none)"
	}

	var sb strings.Builder
	for _, file := range files {
		sb.WriteString("- ")
		sb.WriteString(file)
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// truncateDiff cuts oversized patches and marks the cut.
func truncateDiff(diff string) string {
	if diff == "" {
		return emptyDiffPlaceholder
	}

	if len(diff) <= diffInputCap {
		return diff
	}

	return diff[:diffInputCap] + "\n... (truncated)"
}

// shortHash abbreviates a full hash for prompt labels.
func shortHash(hash string) string {
	const short = 8

	if len(hash) <= short {
		return hash
	}

	return hash[:short]
}
