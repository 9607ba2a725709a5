package models

import "time"

type Recommendation string

const (
	RecommendationHire       Recommendation = "HIRE"
	RecommendationNoHire     Recommendation = "NO_HIRE"
	RecommendationStrongHire Recommendation = "STRONG_HIRE"
	RecommendationMaybe      Recommendation = "MAYBE"
)

var Recommendations = []string{
	string(RecommendationHire), string(RecommendationNoHire),
	string(RecommendationStrongHire), string(RecommendationMaybe),
}

type CategoryScores struct {
	TechnicalKnowledge int  `json:"technical_knowledge" bson:"technical_knowledge"`
	ProblemSolving     int  `json:"problem_solving" bson:"problem_solving"`
	Communication      int  `json:"communication" bson:"communication"`
	Confidence         int  `json:"confidence" bson:"confidence"`
	CultureFit         int  `json:"culture_fit" bson:"culture_fit"`
	Adaptability       int  `json:"adaptability" bson:"adaptability"`
	CodeQuality        *int `json:"code_quality,omitempty" bson:"code_quality,omitempty"`
}

type SkillBreakdown struct {
	Basic        int `json:"basic" bson:"basic"`
	Intermediate int `json:"intermediate" bson:"intermediate"`
	Expert       int `json:"expert" bson:"expert"`
}

// Report is built once from the session history and never mutated afterwards.
type Report struct {
	CandidateName        string         `json:"candidate_name" bson:"candidate_name"`
	OverallScore         int            `json:"overall_score" bson:"overall_score"`
	Categories           CategoryScores `json:"categories" bson:"categories"`
	Summary              string         `json:"summary" bson:"summary"`
	PsychologicalProfile string         `json:"psychological_profile" bson:"psychological_profile"`
	Recommendation       Recommendation `json:"recommendation" bson:"recommendation"`
	IntegrityScore       int            `json:"integrity_score" bson:"integrity_score"`
	SkillBreakdown       SkillBreakdown `json:"skill_breakdown" bson:"skill_breakdown"`
	Turns                []Turn         `json:"turns" bson:"turns"`
	NoData               bool           `json:"no_data" bson:"no_data"`
	Approximate          bool           `json:"approximate" bson:"approximate"`
	GeneratedAt          time.Time      `json:"generated_at" bson:"generated_at"`
}
