package types

// Scores holds the four evaluation scores, each in [0,100].
// No relationship between them is enforced; the synthesizer decides.
type Scores struct {
	Overall         int `json:"overall"`
	SkillsMatch     int `json:"skills_match"`
	ExperienceMatch int `json:"experience_match"`
	CulturalFit     int `json:"cultural_fit"`
}

// CandidateProfile is a denormalized snapshot of extracted candidate facts
type CandidateProfile struct {
	Name               string   `json:"name"`
	CurrentTitle       string   `json:"current_title"`
	YearsExperience    int      `json:"years_experience"`
	IndustryExperience []string `json:"industry_experience"`
	Skills             []string `json:"skills"`
	Education          []string `json:"education"`
	Certifications     []string `json:"certifications"`
	Location           string   `json:"location"`
	Company            string   `json:"company"`
}

// EvaluationResult is the terminal output of a completed session
type EvaluationResult struct {
	Scores           Scores           `json:"scores"`
	Strengths        []string         `json:"strengths"`
	Concerns         []string         `json:"concerns"`
	Recommendation   string           `json:"recommendation"`
	DetailedAnalysis string           `json:"detailed_analysis"`
	CandidateProfile CandidateProfile `json:"candidate_profile"`
}

// Clone returns a deep copy of the result
func (r *EvaluationResult) Clone() *EvaluationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Strengths = cloneStrings(r.Strengths)
	out.Concerns = cloneStrings(r.Concerns)
	out.CandidateProfile = r.CandidateProfile.Clone()
	return &out
}

// Clone returns a deep copy of the profile
func (p CandidateProfile) Clone() CandidateProfile {
	p.IndustryExperience = cloneStrings(p.IndustryExperience)
	p.Skills = cloneStrings(p.Skills)
	p.Education = cloneStrings(p.Education)
	p.Certifications = cloneStrings(p.Certifications)
	return p
}

// ScoreBand buckets a score the way the results dashboard colours it
func ScoreBand(score int) string {
	switch {
	case score >= 80:
		return "strong"
	case score >= 60:
		return "moderate"
	default:
		return "weak"
	}
}
