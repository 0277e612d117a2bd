// Package steps provides the stage table that drives a research session.
package steps

import (
	"fmt"
	"strings"
)

// Stage is one named step of the research pipeline
type Stage struct {
	Name          string `json:"name" yaml:"name"`
	Description   string `json:"description" yaml:"description"`
	TargetPercent int    `json:"target_percent" yaml:"target_percent"`
}

// DefaultStages returns the standard five-stage research table
func DefaultStages() []Stage {
	return []Stage{
		{Name: "Profile Scraper Agent", Description: "Fetching profile data", TargetPercent: 20},
		{Name: "Skills Analysis Agent", Description: "Analyzing technical skills", TargetPercent: 40},
		{Name: "Experience Evaluator Agent", Description: "Evaluating work history", TargetPercent: 60},
		{Name: "Cultural Fit Agent", Description: "Assessing cultural alignment", TargetPercent: 80},
		{Name: "Report Generator Agent", Description: "Compiling final report", TargetPercent: 100},
	}
}

// StageTableError represents an invalid stage table
type StageTableError struct {
	Index   int
	Message string
}

func (e *StageTableError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid stage table: %s", e.Message)
	}
	return fmt.Sprintf("invalid stage table: stage %d: %s", e.Index, e.Message)
}

// ValidateStages checks that the table is non-empty, names are unique, targets
// strictly increase within (0,100] and the last stage reaches 100.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return &StageTableError{Index: -1, Message: "no stages defined"}
	}

	seen := make(map[string]bool, len(stages))
	prev := 0
	for i, st := range stages {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return &StageTableError{Index: i, Message: "name is required"}
		}
		if seen[name] {
			return &StageTableError{Index: i, Message: fmt.Sprintf("duplicate stage name %q", name)}
		}
		seen[name] = true

		if st.TargetPercent <= prev {
			return &StageTableError{Index: i, Message: fmt.Sprintf("target %d must be greater than %d", st.TargetPercent, prev)}
		}
		if st.TargetPercent > 100 {
			return &StageTableError{Index: i, Message: fmt.Sprintf("target %d exceeds 100", st.TargetPercent)}
		}
		prev = st.TargetPercent
	}

	if prev != 100 {
		return &StageTableError{Index: len(stages) - 1, Message: fmt.Sprintf("last target is %d, must be 100", prev)}
	}
	return nil
}
