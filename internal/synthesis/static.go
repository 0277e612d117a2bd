// Package synthesis produces the evaluation result once every research stage is done.
package synthesis

import (
	"context"

	"github.com/jonathan/candidate-research/internal/types"
)

// Static returns the same evaluation for every session. It is the demo
// synthesizer and the default when no model is configured.
type Static struct {
	Result types.EvaluationResult
}

// NewStatic returns a Static synthesizer holding the demo evaluation
func NewStatic() *Static {
	return &Static{Result: DemoResult()}
}

// Synthesize returns a copy of the fixed result
func (s *Static) Synthesize(ctx context.Context, _ types.Snapshot) (*types.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Result.Clone(), nil
}

// DemoResult is the fixed evaluation shown by the demo wizard
func DemoResult() types.EvaluationResult {
	return types.EvaluationResult{
		Scores: types.Scores{
			Overall:         85,
			SkillsMatch:     90,
			ExperienceMatch: 82,
			CulturalFit:     83,
		},
		Strengths: []string{
			"Strong technical background in required technologies",
			"Proven track record of leading successful projects",
			"Excellent communication and collaboration skills",
			"Continuous learner with recent certifications",
		},
		Concerns: []string{
			"Limited experience with specific industry domain",
			"May require relocation or remote work arrangement",
		},
		Recommendation: "Strong candidate with excellent technical skills and experience. " +
			"The candidate demonstrates a solid track record of delivering complex projects and shows strong potential for growth. " +
			"Minor concerns about domain experience can be addressed through onboarding. " +
			"Recommend proceeding to technical interview stage.",
		DetailedAnalysis: "The candidate presents a compelling profile with 8 years of software engineering experience, primarily focused on full-stack development. " +
			"Their technical skill set aligns well with our requirements, particularly in React, TypeScript, and cloud technologies.\n\n" +
			"Their current role at Tech Corp demonstrates leadership capabilities, having led a team of 5 engineers on a major platform migration project. " +
			"The candidate's educational background from MIT provides a strong foundation in computer science fundamentals.\n\n" +
			"Recent certifications in AWS and Google Cloud show commitment to staying current with industry trends. " +
			"Their experience spans both startup and enterprise environments, suggesting adaptability to different organizational cultures.",
		CandidateProfile: types.CandidateProfile{
			Name:               "John Doe",
			CurrentTitle:       "Senior Software Engineer",
			YearsExperience:    8,
			IndustryExperience: []string{"Technology", "E-commerce"},
			Skills:             []string{"React", "TypeScript", "Node.js", "Python", "AWS", "Docker"},
			Education:          []string{"B.S. Computer Science - MIT"},
			Certifications:     []string{"AWS Solutions Architect", "Google Cloud Professional"},
			Location:           "San Francisco, CA",
			Company:            "Tech Corp",
		},
	}
}
