package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/jonathan/candidate-research/internal/types"
)

const (
	pdfMargin    = 15.0
	pdfLineH     = 6.0
	pdfBodyWidth = 210.0 - 2*pdfMargin
)

// renderPDF lays out a one-report document: header, score table, profile,
// findings and narrative.
func renderPDF(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle("Candidate Research Report", true)
	pdf.SetCreator("research_agent", true)
	pdf.SetCreationDate(doc.GeneratedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	r := doc.Result
	p := r.CandidateProfile

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr("Candidate Research Report"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Session %s  |  %s", doc.SessionID, doc.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))), "", 1, "L", false, 0, "")
	if doc.ProfileReference != "" {
		pdf.CellFormat(0, 5, tr(doc.ProfileReference), "", 1, "L", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	heading(pdf, tr, "Scores")
	scores := []struct {
		label string
		value int
	}{
		{"Overall Match", r.Scores.Overall},
		{"Skills Match", r.Scores.SkillsMatch},
		{"Experience", r.Scores.ExperienceMatch},
		{"Cultural Fit", r.Scores.CulturalFit},
	}
	colW := pdfBodyWidth / float64(len(scores))
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetFillColor(240, 240, 240)
	for _, s := range scores {
		pdf.CellFormat(colW, 7, tr(s.label), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "B", 14)
	for _, s := range scores {
		pdf.CellFormat(colW, 10, fmt.Sprintf("%d%% (%s)", s.value, types.ScoreBand(s.value)), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.Ln(4)

	heading(pdf, tr, "Candidate Profile")
	field(pdf, tr, "Name", p.Name)
	field(pdf, tr, "Current title", p.CurrentTitle)
	field(pdf, tr, "Company", p.Company)
	field(pdf, tr, "Location", p.Location)
	field(pdf, tr, "Experience", fmt.Sprintf("%d years", p.YearsExperience))
	field(pdf, tr, "Industries", strings.Join(p.IndustryExperience, ", "))
	field(pdf, tr, "Skills", strings.Join(p.Skills, ", "))
	field(pdf, tr, "Education", strings.Join(p.Education, "; "))
	field(pdf, tr, "Certifications", strings.Join(p.Certifications, "; "))
	pdf.Ln(4)

	heading(pdf, tr, "Strengths")
	bullets(pdf, tr, r.Strengths)
	heading(pdf, tr, "Concerns")
	bullets(pdf, tr, r.Concerns)

	heading(pdf, tr, "Recommendation")
	paragraph(pdf, tr, r.Recommendation)
	heading(pdf, tr, "Detailed Analysis")
	for _, para := range strings.Split(r.DetailedAnalysis, "\n\n") {
		paragraph(pdf, tr, para)
	}

	if pdf.Err() {
		return nil, pdf.Error()
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func heading(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr(text), "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func field(pdf *fpdf.Fpdf, tr func(string) string, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(35, pdfLineH, tr(label), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(pdfBodyWidth-35, pdfLineH, tr(value), "", "L", false)
}

func bullets(pdf *fpdf.Fpdf, tr func(string) string, items []string) {
	pdf.SetFont("Helvetica", "", 10)
	if len(items) == 0 {
		pdf.MultiCell(0, pdfLineH, "None recorded", "", "L", false)
	}
	for _, item := range items {
		pdf.CellFormat(6, pdfLineH, "-", "", 0, "L", false, 0, "")
		pdf.MultiCell(pdfBodyWidth-6, pdfLineH, tr(item), "", "L", false)
	}
	pdf.Ln(3)
}

func paragraph(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, pdfLineH, tr(text), "", "L", false)
	pdf.Ln(2)
}
