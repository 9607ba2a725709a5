package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/utils"
)

// IntegrityDeduction is subtracted from 100 for every suspicious answer.
const IntegrityDeduction = 20

const noDataSummary = "No valid answers were recorded, so no assessment could be made."

// ErrNothingAnalyzed means no valid turn has completed analysis, so there are no
// scores to approximate from.
var ErrNothingAnalyzed = errors.New("no analyzed answers to approximate from")

type reportResponse struct {
	OverallScore *int `json:"overallScore"`
	Categories   struct {
		TechnicalKnowledge int  `json:"technicalKnowledge"`
		ProblemSolving     int  `json:"problemSolving"`
		Communication      int  `json:"communication"`
		Confidence         int  `json:"confidence"`
		CultureFit         int  `json:"cultureFit"`
		Adaptability       int  `json:"adaptability"`
		CodeQuality        *int `json:"codeQuality"`
	} `json:"categories"`
	Summary              string `json:"summary"`
	PsychologicalProfile string `json:"psychologicalProfile"`
	Recommendation       string `json:"recommendation"`
}

// ValidTurns keeps the turns eligible for scoring, in order.
func ValidTurns(history []models.Turn, minChars int) []models.Turn {
	out := make([]models.Turn, 0, len(history))
	for _, t := range history {
		if IsValidTranscript(t.Transcript, minChars) {
			out = append(out, t)
		}
	}
	return out
}

// NoDataReport is the deterministic report for a session without valid answers.
func NoDataReport(candidate string) models.Report {
	return models.Report{
		CandidateName:  candidate,
		Summary:        noDataSummary,
		Recommendation: models.RecommendationNoHire,
		IntegrityScore: 100,
		Turns:          []models.Turn{},
		NoData:         true,
		GeneratedAt:    time.Now().UTC(),
	}
}

func IntegrityScore(turns []models.Turn) int {
	score := 100
	for _, t := range turns {
		if t.Metrics.Integrity.Status == models.IntegritySuspicious {
			score -= IntegrityDeduction
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

func Breakdown(turns []models.Turn) models.SkillBreakdown {
	var b models.SkillBreakdown
	for _, t := range turns {
		switch t.AnswerQuality {
		case models.ComplexityExpert:
			b.Expert++
		case models.ComplexityIntermediate:
			b.Intermediate++
		default:
			b.Basic++
		}
	}
	return b
}

// RecommendationFor maps an overall score onto the recommendation vocabulary.
func RecommendationFor(overall int) models.Recommendation {
	switch {
	case overall >= 85:
		return models.RecommendationStrongHire
	case overall >= 70:
		return models.RecommendationHire
	case overall >= 50:
		return models.RecommendationMaybe
	default:
		return models.RecommendationNoHire
	}
}

// SynthesizeReport builds the final report from the valid turns of history. With no
// valid turns the model is not called. Non-fatal model failures fall back to an
// approximate report averaged from per-turn scores.
func (g *Gateway) SynthesizeReport(ctx context.Context, ic models.InterviewContext, history []models.Turn) (models.Report, error) {
	const op = "Gateway.SynthesizeReport"
	start := time.Now()

	valid := ValidTurns(history, g.cfg.MinTranscriptChars)
	if len(valid) == 0 {
		return NoDataReport(candidateName(ic)), nil
	}
	hasCode := codeSubmitted(valid)

	data := struct {
		CandidateName   string
		TurnCount       int
		Log             string
		HasCode         bool
		Recommendations string
	}{
		CandidateName:   candidateName(ic),
		TurnCount:       len(valid),
		Log:             interviewLog(valid),
		HasCode:         hasCode,
		Recommendations: strings.Join(models.Recommendations, ", "),
	}
	system, instruction, err := g.prompts.render(promptReport, data)
	if err != nil {
		return models.Report{}, utils.E(utils.CodeInternal, op, "failed to build prompt", err)
	}
	parts := []llm.Part{llm.Text(instruction)}
	parts = append(parts, g.documentParts(contextDocs(ic, false)...)...)

	raw, err := g.model.GenerateJSON(ctx, llm.Request{Op: promptReport, System: system, Parts: parts, Schema: reportSchema(hasCode)})
	if err != nil {
		if llm.IsFatal(err) || ctx.Err() != nil {
			return models.Report{}, wrap(op, "report synthesis failed", err)
		}
		g.log.WithError(err).Warn("report synthesis failed, using approximate report")
		return g.approximate(op, ic, valid, err)
	}

	var resp reportResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.OverallScore == nil {
		if err == nil {
			err = errors.New("report response has no overall score")
		}
		g.log.WithError(err).Warn("malformed report response, using approximate report")
		return g.approximate(op, ic, valid, err)
	}

	overall := clampScore(*resp.OverallScore)
	rep := models.Report{
		CandidateName: candidateName(ic),
		OverallScore:  overall,
		Categories: models.CategoryScores{
			TechnicalKnowledge: clampScore(resp.Categories.TechnicalKnowledge),
			ProblemSolving:     clampScore(resp.Categories.ProblemSolving),
			Communication:      clampScore(resp.Categories.Communication),
			Confidence:         clampScore(resp.Categories.Confidence),
			CultureFit:         clampScore(resp.Categories.CultureFit),
			Adaptability:       clampScore(resp.Categories.Adaptability),
		},
		Summary:              strings.TrimSpace(resp.Summary),
		PsychologicalProfile: strings.TrimSpace(resp.PsychologicalProfile),
		Recommendation:       models.Recommendation(pick(resp.Recommendation, models.Recommendations, string(RecommendationFor(overall)))),
		IntegrityScore:       IntegrityScore(valid),
		SkillBreakdown:       Breakdown(valid),
		Turns:                valid,
		GeneratedAt:          time.Now().UTC(),
	}
	if hasCode {
		cq := averageCodeScore(valid)
		if resp.Categories.CodeQuality != nil {
			cq = clampScore(*resp.Categories.CodeQuality)
		}
		rep.Categories.CodeQuality = &cq
	}

	g.log.WithFields(logrus.Fields{
		"turns":          len(valid),
		"overall":        rep.OverallScore,
		"recommendation": rep.Recommendation,
		"latency_ms":     time.Since(start).Milliseconds(),
	}).Info("report synthesized")
	return rep, nil
}

func (g *Gateway) approximate(op string, ic models.InterviewContext, valid []models.Turn, cause error) (models.Report, error) {
	rep, err := ApproximateReport(candidateName(ic), valid)
	if err != nil {
		return models.Report{}, utils.E(utils.CodeUnavailable, op, "the report could not be generated, finish again to retry", errors.Join(err, cause))
	}
	return rep, nil
}

// ApproximateReport averages the completed per-turn scores of valid. It returns
// ErrNothingAnalyzed when none of them completed analysis.
func ApproximateReport(candidate string, valid []models.Turn) (models.Report, error) {
	var tech, clarity, relevance, deception, n int
	for _, t := range valid {
		if t.Metrics.Status != models.AnalysisComplete {
			continue
		}
		tech += t.Metrics.TechnicalAccuracy
		clarity += t.Metrics.CommunicationClarity
		relevance += t.Metrics.Relevance
		deception += t.Metrics.DeceptionProbability
		n++
	}
	if n == 0 {
		return models.Report{}, ErrNothingAnalyzed
	}
	avg := func(sum int) int { return (sum + n/2) / n }
	techAvg, clarityAvg, relevanceAvg := avg(tech), avg(clarity), avg(relevance)
	overall := (techAvg + clarityAvg + relevanceAvg + 1) / 3

	rep := models.Report{
		CandidateName: candidate,
		OverallScore:  overall,
		Categories: models.CategoryScores{
			TechnicalKnowledge: techAvg,
			ProblemSolving:     techAvg,
			Communication:      clarityAvg,
			Confidence:         clampScore(100 - avg(deception)),
			CultureFit:         (clarityAvg + relevanceAvg + 1) / 2,
			Adaptability:       relevanceAvg,
		},
		Summary:        fmt.Sprintf("Approximate assessment averaged from %d analyzed answer(s); the full report could not be generated.", n),
		Recommendation: RecommendationFor(overall),
		IntegrityScore: IntegrityScore(valid),
		SkillBreakdown: Breakdown(valid),
		Turns:          valid,
		Approximate:    true,
		GeneratedAt:    time.Now().UTC(),
	}
	if codeSubmitted(valid) {
		cq := averageCodeScore(valid)
		rep.Categories.CodeQuality = &cq
	}
	return rep, nil
}

func codeSubmitted(turns []models.Turn) bool {
	for _, t := range turns {
		if strings.TrimSpace(t.Code) != "" {
			return true
		}
	}
	return false
}

func averageCodeScore(turns []models.Turn) int {
	var sum, n int
	for _, t := range turns {
		if t.Metrics.CodeAnalysis != nil {
			sum += t.Metrics.CodeAnalysis.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return (sum + n/2) / n
}

func interviewLog(turns []models.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "Turn %d [%s]\nQ: %s\nA: %s\n", t.ID, t.Complexity, t.Question, t.Transcript)
		m := t.Metrics
		switch m.Status {
		case models.AnalysisComplete:
			fmt.Fprintf(&b, "Scores: technical=%d clarity=%d relevance=%d sentiment=%s pace=%s star=%t integrity=%s",
				m.TechnicalAccuracy, m.CommunicationClarity, m.Relevance, m.Sentiment, m.SpeechPace, m.StarMethod, m.Integrity.Status)
			if m.Integrity.Reason != "" {
				fmt.Fprintf(&b, " (%s)", m.Integrity.Reason)
			}
			b.WriteString("\n")
			if m.CodeAnalysis != nil {
				fmt.Fprintf(&b, "Code: %s score=%d time=%s space=%s\n", m.CodeAnalysis.Language, m.CodeAnalysis.Score, m.CodeAnalysis.TimeComplexity, m.CodeAnalysis.SpaceComplexity)
			}
		case models.AnalysisFailed:
			b.WriteString("Scores: analysis failed\n")
		default:
			b.WriteString("Scores: not analyzed\n")
		}
		if t.Notes != "" {
			fmt.Fprintf(&b, "Interviewer notes: %s\n", t.Notes)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
