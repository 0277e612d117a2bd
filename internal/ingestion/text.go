// Package ingestion normalizes research intakes at the intake boundary before validation.
package ingestion

import (
	"regexp"
	"strings"

	"github.com/jonathan/candidate-research/internal/types"
)

var (
	spaceRun     = regexp.MustCompile(`[ \t\f\v]+`)
	blankLineRun = regexp.MustCompile(`\n\n\n+`)
)

// CleanText normalizes pasted text while preserving its structure:
// line endings become LF, runs of spaces collapse, markdown headings and bullets
// are kept, and at most one blank line separates paragraphs.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, cleanLine(line))
	}

	result := strings.Join(cleaned, "\n")
	result = blankLineRun.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// cleanLine trims a single line, keeping leading indentation for bullets
func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return ""
	}

	// Headings lose their indentation
	if strings.HasPrefix(trimmed, "#") {
		return spaceRun.ReplaceAllString(trimmed, " ")
	}

	indent := ""
	if isBulletLine(trimmed) {
		indent = strings.Repeat(" ", len(line)-len(trimmed))
	}
	return indent + spaceRun.ReplaceAllString(trimmed, " ")
}

func isBulletLine(trimmed string) bool {
	for _, p := range []string{"- ", "* ", "• ", "· "} {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// NormalizeIntake returns a copy of the intake with its text fields cleaned.
// Job descriptions pasted as HTML are reduced to text first. A description that
// is only whitespace or markup normalizes to "" and fails validation.
func NormalizeIntake(in types.Intake) types.Intake {
	out := in.Clone()
	out.ProfileReference = strings.TrimSpace(in.ProfileReference)
	out.Notes = CleanText(in.Notes)

	desc := in.JobDescriptionText
	if LooksLikeHTML(desc) {
		if text, err := StripHTML(desc); err == nil {
			desc = text
		}
	}
	out.JobDescriptionText = CleanText(desc)

	if out.Attachment != nil {
		out.Attachment.Name = strings.TrimSpace(out.Attachment.Name)
		out.Attachment.MimeType = strings.ToLower(strings.TrimSpace(out.Attachment.MimeType))
	}
	return out
}
