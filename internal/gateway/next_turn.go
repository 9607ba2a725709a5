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

// ErrMissingQuestion means the model answered without a question to ask next.
// It is never papered over with a canned question.
var ErrMissingQuestion = errors.New("model response has no question")

type Question struct {
	Text       string            `json:"text"`
	Complexity models.Complexity `json:"complexity"`
}

// NextTurn is the Phase 1 result. NextComplexity is empty when the model returned
// a value outside the vocabulary; the caller derives one.
type NextTurn struct {
	Transcript     string
	AnswerQuality  models.Complexity
	NextQuestion   string
	NextComplexity models.Complexity
}

type openingResponse struct {
	Question   string `json:"question"`
	Complexity string `json:"complexity"`
}

type nextTurnResponse struct {
	Transcript     string `json:"transcript"`
	AnswerQuality  string `json:"answerQuality"`
	NextQuestion   string `json:"nextQuestion"`
	NextComplexity string `json:"nextComplexity"`
}

// OpeningQuestion asks for the first question of the session from the context documents.
func (g *Gateway) OpeningQuestion(ctx context.Context, ic models.InterviewContext) (Question, error) {
	const op = "Gateway.OpeningQuestion"

	system, instruction, err := g.prompts.render(promptOpening, struct{ CandidateName string }{candidateName(ic)})
	if err != nil {
		return Question{}, utils.E(utils.CodeInternal, op, "failed to build prompt", err)
	}
	parts := append([]llm.Part{llm.Text(instruction)}, g.documentParts(contextDocs(ic, true)...)...)

	raw, err := g.model.GenerateJSON(ctx, llm.Request{Op: promptOpening, System: system, Parts: parts, Schema: openingSchema})
	if err != nil {
		return Question{}, wrap(op, "failed to generate the opening question", err)
	}

	var resp openingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Question{}, utils.E(utils.CodeUnavailable, op, "malformed opening question response", err)
	}
	text := strings.TrimSpace(resp.Question)
	if text == "" {
		return Question{}, utils.E(utils.CodeUnavailable, op, "the interviewer could not produce a question, please retry", ErrMissingQuestion)
	}
	c, ok := parseComplexity(resp.Complexity)
	if !ok || c == models.ComplexityExpert {
		c = models.ComplexityIntermediate
	}
	return Question{Text: text, Complexity: c}, nil
}

// RequestNextTurn transcribes the answer to current and asks for the next question.
// recent is cut to the configured history window.
func (g *Gateway) RequestNextTurn(ctx context.Context, ic models.InterviewContext, recent []models.Turn, current Question, answer Media) (NextTurn, error) {
	const op = "Gateway.RequestNextTurn"
	start := time.Now()

	if answer.empty() {
		return NextTurn{}, utils.E(utils.CodeInvalidArgument, op, "answer recording is empty", nil)
	}

	data := struct {
		CandidateName string
		Question      string
		Complexity    models.Complexity
		History       string
		NoAudio       string
	}{
		CandidateName: candidateName(ic),
		Question:      current.Text,
		Complexity:    current.Complexity,
		History:       historyText(window(recent, g.cfg.HistoryWindow)),
		NoAudio:       NoAudioTranscript,
	}
	system, instruction, err := g.prompts.render(promptNextTurn, data)
	if err != nil {
		return NextTurn{}, utils.E(utils.CodeInternal, op, "failed to build prompt", err)
	}

	parts := []llm.Part{llm.Text(instruction)}
	parts = append(parts, g.documentParts(contextDocs(ic, false)...)...)
	parts = append(parts, llm.Text("[CANDIDATE ANSWER]"), llm.Blob(answer.MIMEType, answer.Data))

	var silent <-chan bool
	if g.speech != nil && strings.HasPrefix(answer.MIMEType, "audio/") {
		ch := make(chan bool, 1)
		go func() { ch <- g.isSilent(ctx, answer) }()
		silent = ch
	}

	raw, err := g.model.GenerateJSON(ctx, llm.Request{Op: promptNextTurn, System: system, Parts: parts, Schema: nextTurnSchema})
	if err != nil {
		return NextTurn{}, wrap(op, "failed to analyze the answer", err)
	}

	var resp nextTurnResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return NextTurn{}, utils.E(utils.CodeUnavailable, op, "malformed next-turn response", err)
	}

	out := NextTurn{
		Transcript:   normalizeTranscript(resp.Transcript),
		NextQuestion: strings.TrimSpace(resp.NextQuestion),
	}
	if out.NextQuestion == "" {
		return NextTurn{}, utils.E(utils.CodeUnavailable, op, "the interviewer could not produce a next question, please retry", ErrMissingQuestion)
	}
	if silent != nil && <-silent {
		out.Transcript = NoAudioTranscript
	}

	if q, ok := parseComplexity(resp.AnswerQuality); ok {
		out.AnswerQuality = q
	} else if IsSentinel(out.Transcript) {
		out.AnswerQuality = models.ComplexityBasic
	} else {
		out.AnswerQuality = models.ComplexityIntermediate
	}
	if c, ok := parseComplexity(resp.NextComplexity); ok {
		out.NextComplexity = c
	}

	g.log.WithFields(logrus.Fields{
		"phase":          1,
		"answer_quality": out.AnswerQuality,
		"silent":         IsSentinel(out.Transcript),
		"latency_ms":     time.Since(start).Milliseconds(),
	}).Debug("next turn generated")
	return out, nil
}

// isSilent cross-checks audio with speech-to-text. Errors count as "not known silent".
func (g *Gateway) isSilent(ctx context.Context, answer Media) bool {
	text, _, err := g.speech.Transcribe(ctx, answer.Data, answer.MIMEType, g.cfg.SpeechLanguage)
	if err != nil {
		g.log.WithError(err).Debug("speech silence check skipped")
		return false
	}
	return strings.TrimSpace(text) == ""
}

func window(turns []models.Turn, n int) []models.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func historyText(turns []models.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Q%d (%s): %s\nA%d (%s): %s", t.ID, t.Complexity, t.Question, t.ID, t.AnswerQuality, t.Transcript)
	}
	return b.String()
}
