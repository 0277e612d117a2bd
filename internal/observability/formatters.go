// Package observability provides boxed terminal output for the research CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/candidate-research/internal/pipeline/steps"
	"github.com/jonathan/candidate-research/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// barWidth is the width of the progress bar inside a box
	barWidth = 30
	// DefaultLogWindow is how many trailing log lines PrintSnapshot shows
	DefaultLogWindow = 8
)

// Printer handles formatted output for the CLI
type Printer struct {
	out       io.Writer
	logWindow int
}

// NewPrinter creates a new Printer that writes to the given writer.
// logWindow caps the log lines shown per snapshot; zero means DefaultLogWindow.
func NewPrinter(out io.Writer, logWindow int) *Printer {
	if logWindow <= 0 {
		logWindow = DefaultLogWindow
	}
	return &Printer{out: out, logWindow: logWindow}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, boxWidth-4), boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintSnapshot outputs the progress view of a session: bar, current stage,
// completed stages and the tail of the activity log.
func (p *Printer) PrintSnapshot(snap types.Snapshot) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session: %s\n", snap.ID))
	sb.WriteString(fmt.Sprintf("Status:  %s\n", snap.Status))

	if pct, ok := snap.OverallPercent(); ok {
		sb.WriteString(fmt.Sprintf("%s %3d%%\n", ProgressBar(pct, barWidth), pct))
		if snap.Progress.CurrentStageName != "" {
			sb.WriteString(fmt.Sprintf("Agent:   %s\n", snap.Progress.CurrentStageName))
		}
		if snap.Progress.EstimatedSecondsRemaining != nil {
			sb.WriteString(fmt.Sprintf("ETA:     ~%ds\n", *snap.Progress.EstimatedSecondsRemaining))
		}
	}

	if len(snap.CompletedStages) > 0 {
		sb.WriteString("\nCompleted:\n")
		for _, s := range snap.CompletedStages {
			sb.WriteString(fmt.Sprintf("  ✓ %s\n", s))
		}
	}

	if snap.Error != nil {
		sb.WriteString(fmt.Sprintf("\nError at %s: %s\n", snap.Error.Stage, snap.Error.Message))
	}

	if len(snap.Log) > 0 {
		sb.WriteString("\nActivity:\n")
		start := max(0, len(snap.Log)-p.logWindow)
		if start > 0 {
			sb.WriteString(fmt.Sprintf("  ... %d earlier lines\n", start))
		}
		for _, e := range snap.Log[start:] {
			sb.WriteString(fmt.Sprintf("  %s\n", e.Message))
		}
	}

	p.printBox("RESEARCH PROGRESS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResult outputs the scores, findings and candidate facts of an evaluation.
func (p *Printer) PrintResult(result *types.EvaluationResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	s := result.Scores
	for _, row := range []struct {
		label string
		score int
	}{
		{"Overall Match", s.Overall},
		{"Skills Match", s.SkillsMatch},
		{"Experience", s.ExperienceMatch},
		{"Cultural Fit", s.CulturalFit},
	} {
		sb.WriteString(fmt.Sprintf("%-14s %3d%%  %s\n", row.label, row.score, types.ScoreBand(row.score)))
	}

	profile := result.CandidateProfile
	if profile.Name != "" {
		sb.WriteString(fmt.Sprintf("\n%s, %s", profile.Name, profile.CurrentTitle))
		if profile.Company != "" {
			sb.WriteString(fmt.Sprintf(" at %s", profile.Company))
		}
		sb.WriteString("\n")
		if len(profile.Skills) > 0 {
			sb.WriteString(fmt.Sprintf("Skills: %s\n", strings.Join(profile.Skills, ", ")))
		}
	}

	writeList(&sb, "Strengths", "+", result.Strengths)
	writeList(&sb, "Concerns", "-", result.Concerns)

	if result.Recommendation != "" {
		sb.WriteString("\nRecommendation:\n")
		for _, line := range wrap(result.Recommendation, boxWidth-6) {
			sb.WriteString("  " + line + "\n")
		}
	}

	p.printBox("RESEARCH RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStages outputs a stage table
func (p *Printer) PrintStages(stages []steps.Stage) {
	var sb strings.Builder
	for i, st := range stages {
		sb.WriteString(fmt.Sprintf("%d. %-28s %3d%%\n", i+1, st.Name, st.TargetPercent))
		sb.WriteString(fmt.Sprintf("   %s\n", st.Description))
	}
	p.printBox("PIPELINE STAGES", strings.TrimSuffix(sb.String(), "\n"))
}

// ProgressBar renders pct as a fixed width bar
func ProgressBar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * width / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func writeList(sb *strings.Builder, title, marker string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("\n%s:\n", title))
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("  %s %s\n", marker, item))
	}
}

// wrap breaks text on spaces into lines of at most width runes
func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && utf8.RuneCountInString(line.String())+1+utf8.RuneCountInString(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-3]) + "..."
}

func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
