package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/utils"
)

type DeepAnalysisInput struct {
	Question      string
	Transcript    string
	Answer        Media
	Frame         *Media // optional still of the candidate
	Code          string
	AnswerQuality models.Complexity // Phase 1 verdict, used when the response omits one
}

type deepAnalysisResponse struct {
	TechnicalAccuracy    *int     `json:"technicalAccuracy"`
	CommunicationClarity *int     `json:"communicationClarity"`
	Relevance            *int     `json:"relevance"`
	Sentiment            string   `json:"sentiment"`
	DeceptionProbability int      `json:"deceptionProbability"`
	SpeechPace           string   `json:"speechPace"`
	StarMethod           bool     `json:"starMethod"`
	DemonstratedSkills   []string `json:"demonstratedSkills"`
	ImprovementAreas     []string `json:"improvementAreas"`
	AnswerQuality        string   `json:"answerQuality"`
	Integrity            struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"integrity"`
}

type codeAnalysisResponse struct {
	Language        string   `json:"language"`
	TimeComplexity  string   `json:"timeComplexity"`
	SpaceComplexity string   `json:"spaceComplexity"`
	Bugs            []string `json:"bugs"`
	Suggestions     []string `json:"suggestions"`
	Score           int      `json:"score"`
}

// RequestDeepAnalysis scores one committed answer. Sentinel transcripts short-circuit to
// neutral skipped metrics without a remote call.
func (g *Gateway) RequestDeepAnalysis(ctx context.Context, ic models.InterviewContext, in DeepAnalysisInput) (models.AnalysisMetrics, error) {
	const op = "Gateway.RequestDeepAnalysis"
	start := time.Now()

	quality := in.AnswerQuality
	if !quality.Valid() {
		quality = models.ComplexityBasic
	}
	if strings.TrimSpace(in.Transcript) == "" || IsSentinel(in.Transcript) {
		return models.SkippedMetrics(quality), nil
	}

	var code *models.CodeAnalysis
	if utf8.RuneCountInString(strings.TrimSpace(in.Code)) >= g.cfg.CodeMinChars {
		ca, err := g.AnalyzeCode(ctx, in.Question, in.Code)
		if err != nil {
			if llm.IsFatal(err) {
				return models.AnalysisMetrics{}, err
			}
			// the answer is still scored without the code review
			g.log.WithError(err).Warn("code analysis failed")
		} else {
			code = &ca
		}
	}

	data := struct {
		CandidateName string
		Question      string
		Transcript    string
		Code          string
		Sentiments    string
		Paces         string
	}{
		CandidateName: candidateName(ic),
		Question:      in.Question,
		Transcript:    in.Transcript,
		Code:          strings.TrimSpace(in.Code),
		Sentiments:    strings.Join(models.Sentiments, ", "),
		Paces:         strings.Join(models.Paces, ", "),
	}
	system, instruction, err := g.prompts.render(promptDeep, data)
	if err != nil {
		return models.AnalysisMetrics{}, utils.E(utils.CodeInternal, op, "failed to build prompt", err)
	}

	parts := []llm.Part{llm.Text(instruction)}
	parts = append(parts, g.documentParts(labeledDoc{label: "JOB DESCRIPTION", doc: ic.JobDescription})...)
	if !in.Answer.empty() {
		parts = append(parts, llm.Text("[CANDIDATE ANSWER]"), llm.Blob(in.Answer.MIMEType, in.Answer.Data))
	}
	if !in.Frame.empty() {
		parts = append(parts, llm.Text("[CANDIDATE FRAME]"), llm.Blob(in.Frame.MIMEType, in.Frame.Data))
	}

	raw, err := g.model.GenerateJSON(ctx, llm.Request{Op: promptDeep, System: system, Parts: parts, Schema: deepAnalysisSchema})
	if err != nil {
		return models.AnalysisMetrics{}, wrap(op, "deep analysis failed", err)
	}

	var resp deepAnalysisResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.AnalysisMetrics{}, utils.E(utils.CodeUnavailable, op, "malformed deep analysis response", err)
	}
	if resp.TechnicalAccuracy == nil && resp.CommunicationClarity == nil && resp.Relevance == nil {
		return models.AnalysisMetrics{}, utils.E(utils.CodeUnavailable, op, "deep analysis response has no scores", nil)
	}

	m := models.AnalysisMetrics{
		Status:               models.AnalysisComplete,
		TechnicalAccuracy:    clampScore(deref(resp.TechnicalAccuracy)),
		CommunicationClarity: clampScore(deref(resp.CommunicationClarity)),
		Relevance:            clampScore(deref(resp.Relevance)),
		Sentiment:            models.Sentiment(pick(resp.Sentiment, models.Sentiments, string(models.SentimentNeutral))),
		DeceptionProbability: clampScore(resp.DeceptionProbability),
		SpeechPace:           models.Pace(pick(resp.SpeechPace, models.Paces, string(models.PaceNormal))),
		StarMethod:           resp.StarMethod,
		DemonstratedSkills:   nonNil(resp.DemonstratedSkills),
		ImprovementAreas:     nonNil(resp.ImprovementAreas),
		Integrity:            models.Integrity{Status: models.IntegrityClean},
		AnswerQuality:        quality,
		CodeAnalysis:         code,
	}
	if q, ok := parseComplexity(resp.AnswerQuality); ok {
		m.AnswerQuality = q
	}
	if strings.EqualFold(strings.TrimSpace(resp.Integrity.Status), string(models.IntegritySuspicious)) {
		m.Integrity = models.Integrity{Status: models.IntegritySuspicious, Reason: strings.TrimSpace(resp.Integrity.Reason)}
	}

	g.log.WithFields(logrus.Fields{
		"phase":      2,
		"integrity":  m.Integrity.Status,
		"has_code":   code != nil,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("deep analysis complete")
	return m, nil
}

// AnalyzeCode reviews code submitted with an answer.
func (g *Gateway) AnalyzeCode(ctx context.Context, question, code string) (models.CodeAnalysis, error) {
	const op = "Gateway.AnalyzeCode"

	system, instruction, err := g.prompts.render(promptCode, struct{ Question, Code string }{question, strings.TrimSpace(code)})
	if err != nil {
		return models.CodeAnalysis{}, utils.E(utils.CodeInternal, op, "failed to build prompt", err)
	}
	raw, err := g.model.GenerateJSON(ctx, llm.Request{Op: promptCode, System: system, Parts: []llm.Part{llm.Text(instruction)}, Schema: codeAnalysisSchema})
	if err != nil {
		return models.CodeAnalysis{}, wrap(op, "code analysis failed", err)
	}

	var resp codeAnalysisResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.CodeAnalysis{}, utils.E(utils.CodeUnavailable, op, "malformed code analysis response", err)
	}
	return models.CodeAnalysis{
		Language:        strings.TrimSpace(resp.Language),
		TimeComplexity:  strings.TrimSpace(resp.TimeComplexity),
		SpaceComplexity: strings.TrimSpace(resp.SpaceComplexity),
		Bugs:            nonNil(resp.Bugs),
		Suggestions:     nonNil(resp.Suggestions),
		Score:           clampScore(resp.Score),
	}, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// pick returns the vocabulary entry matching v case-insensitively, or def.
func pick(v string, vocabulary []string, def string) string {
	for _, w := range vocabulary {
		if strings.EqualFold(strings.TrimSpace(v), w) {
			return w
		}
	}
	return def
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
