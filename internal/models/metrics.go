package models

type Sentiment string

const (
	SentimentPositive  Sentiment = "Positive"
	SentimentNeutral   Sentiment = "Neutral"
	SentimentNegative  Sentiment = "Negative"
	SentimentAnxious   Sentiment = "Anxious"
	SentimentConfident Sentiment = "Confident"
	SentimentDefensive Sentiment = "Defensive"
)

var Sentiments = []string{
	string(SentimentPositive), string(SentimentNeutral), string(SentimentNegative),
	string(SentimentAnxious), string(SentimentConfident), string(SentimentDefensive),
}

type Pace string

const (
	PaceSlow   Pace = "Slow"
	PaceNormal Pace = "Normal"
	PaceFast   Pace = "Fast"
	PaceRushed Pace = "Rushed"
)

var Paces = []string{string(PaceSlow), string(PaceNormal), string(PaceFast), string(PaceRushed)}

type IntegrityStatus string

const (
	IntegrityClean      IntegrityStatus = "Clean"
	IntegritySuspicious IntegrityStatus = "Suspicious"
)

// AnalysisStatus tells a loading placeholder apart from a real (possibly zero) score.
type AnalysisStatus string

const (
	AnalysisPending  AnalysisStatus = "pending"
	AnalysisComplete AnalysisStatus = "complete"
	AnalysisSkipped  AnalysisStatus = "skipped" // silent or unanalyzable answer
	AnalysisFailed   AnalysisStatus = "failed"
)

type Integrity struct {
	Status IntegrityStatus `json:"status" bson:"status"`
	Reason string          `json:"reason,omitempty" bson:"reason,omitempty"`
}

type CodeAnalysis struct {
	Language        string   `json:"language" bson:"language"`
	TimeComplexity  string   `json:"time_complexity" bson:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity" bson:"space_complexity"`
	Bugs            []string `json:"bugs" bson:"bugs"`
	Suggestions     []string `json:"suggestions" bson:"suggestions"`
	Score           int      `json:"score" bson:"score"`
}

type AnalysisMetrics struct {
	Status               AnalysisStatus `json:"status" bson:"status"`
	TechnicalAccuracy    int            `json:"technical_accuracy" bson:"technical_accuracy"`
	CommunicationClarity int            `json:"communication_clarity" bson:"communication_clarity"`
	Relevance            int            `json:"relevance" bson:"relevance"`
	Sentiment            Sentiment      `json:"sentiment" bson:"sentiment"`
	DeceptionProbability int            `json:"deception_probability" bson:"deception_probability"`
	SpeechPace           Pace           `json:"speech_pace" bson:"speech_pace"`
	StarMethod           bool           `json:"star_method" bson:"star_method"`
	DemonstratedSkills   []string       `json:"demonstrated_skills" bson:"demonstrated_skills"`
	ImprovementAreas     []string       `json:"improvement_areas" bson:"improvement_areas"`
	Integrity            Integrity      `json:"integrity" bson:"integrity"`
	AnswerQuality        Complexity     `json:"answer_quality" bson:"answer_quality"`
	CodeAnalysis         *CodeAnalysis  `json:"code_analysis,omitempty" bson:"code_analysis,omitempty"`
	FailureReason        string         `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
}

func neutralMetrics(status AnalysisStatus, quality Complexity) AnalysisMetrics {
	return AnalysisMetrics{
		Status:             status,
		Sentiment:          SentimentNeutral,
		SpeechPace:         PaceNormal,
		DemonstratedSkills: []string{},
		ImprovementAreas:   []string{},
		Integrity:          Integrity{Status: IntegrityClean},
		AnswerQuality:      quality,
	}
}

// PlaceholderMetrics is what a turn carries between Phase 1 and Phase 2.
func PlaceholderMetrics(quality Complexity) AnalysisMetrics {
	return neutralMetrics(AnalysisPending, quality)
}

// SkippedMetrics is the zeroed result for answers that cannot be analyzed.
func SkippedMetrics(quality Complexity) AnalysisMetrics {
	return neutralMetrics(AnalysisSkipped, quality)
}

// FailedMetrics marks a turn whose deep analysis did not complete.
func FailedMetrics(quality Complexity, reason string) AnalysisMetrics {
	m := neutralMetrics(AnalysisFailed, quality)
	m.FailureReason = reason
	return m
}

func (m AnalysisMetrics) Final() bool {
	return m.Status == AnalysisComplete || m.Status == AnalysisSkipped || m.Status == AnalysisFailed
}
