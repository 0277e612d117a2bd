package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

// renderCSV flattens the document into section,field,value rows.
// List fields become one row per item with the index as the field.
func renderCSV(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	r := doc.Result
	p := r.CandidateProfile

	rows := [][]string{
		{"section", "field", "value"},
		{"session", "id", doc.SessionID},
		{"session", "profile_reference", doc.ProfileReference},
		{"session", "generated_at", doc.GeneratedAt.UTC().Format(time.RFC3339)},
		{"scores", "overall", strconv.Itoa(r.Scores.Overall)},
		{"scores", "skills_match", strconv.Itoa(r.Scores.SkillsMatch)},
		{"scores", "experience_match", strconv.Itoa(r.Scores.ExperienceMatch)},
		{"scores", "cultural_fit", strconv.Itoa(r.Scores.CulturalFit)},
		{"profile", "name", p.Name},
		{"profile", "current_title", p.CurrentTitle},
		{"profile", "years_experience", strconv.Itoa(p.YearsExperience)},
		{"profile", "industry_experience", strings.Join(p.IndustryExperience, "; ")},
		{"profile", "skills", strings.Join(p.Skills, "; ")},
		{"profile", "education", strings.Join(p.Education, "; ")},
		{"profile", "certifications", strings.Join(p.Certifications, "; ")},
		{"profile", "location", p.Location},
		{"profile", "company", p.Company},
	}
	rows = appendList(rows, "strengths", r.Strengths)
	rows = appendList(rows, "concerns", r.Concerns)
	rows = append(rows,
		[]string{"summary", "recommendation", r.Recommendation},
		[]string{"summary", "detailed_analysis", r.DetailedAnalysis},
	)

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendList(rows [][]string, section string, items []string) [][]string {
	for i, item := range items {
		rows = append(rows, []string{section, strconv.Itoa(i + 1), item})
	}
	return rows
}
