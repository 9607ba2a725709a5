package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/utils"
)

type fakeModel struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []llm.Request
}

func newFakeModel() *fakeModel {
	return &fakeModel{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeModel) GenerateJSON(_ context.Context, req llm.Request) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := f.errs[req.Op]; err != nil {
		return nil, err
	}
	return json.RawMessage(f.responses[req.Op]), nil
}

func (f *fakeModel) Name() string { return "fake" }
func (f *fakeModel) Close() error { return nil }

func (f *fakeModel) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

type fakeSpeech struct{ text string }

func (s fakeSpeech) Transcribe(context.Context, []byte, string, string) (string, float64, error) {
	return s.text, 0.9, nil
}
func (fakeSpeech) Close() error { return nil }

func newGateway(t *testing.T, m llm.Provider) *Gateway {
	t.Helper()
	g, err := New(m, nil, Config{}, logger.Discard())
	require.NoError(t, err)
	return g
}

func testContext() models.InterviewContext {
	return models.InterviewContext{
		CandidateName:  "Ada",
		JobDescription: models.Document{Name: "jd.md", MIMEType: "text/markdown", Text: "Backend engineer, Go"},
		Resume:         models.Document{Name: "cv.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")},
	}
}

var answer = Media{MIMEType: "video/webm", Data: []byte("recorded-bytes")}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(nil, nil, Config{}, logger.Discard())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestLoadPrompts_AllRender(t *testing.T) {
	set, err := loadPrompts()
	require.NoError(t, err)
	assert.Len(t, set, 5)
}

func TestOpeningQuestion(t *testing.T) {
	m := newFakeModel()
	m.responses[promptOpening] = `{"question":"Tell me about Go channels.","complexity":"Basic"}`
	g := newGateway(t, m)

	q, err := g.OpeningQuestion(context.Background(), testContext())
	require.NoError(t, err)
	assert.Equal(t, "Tell me about Go channels.", q.Text)
	assert.Equal(t, models.ComplexityBasic, q.Complexity)

	req := m.calls[0]
	assert.Equal(t, openingSchema, req.Schema)
	var sawPDF bool
	for _, p := range req.Parts {
		if p.IsBlob() && p.MIMEType == "application/pdf" {
			sawPDF = true
		}
	}
	assert.True(t, sawPDF, "binary resume is sent inline")
}

func TestOpeningQuestion_MissingQuestionIsHardFailure(t *testing.T) {
	m := newFakeModel()
	m.responses[promptOpening] = `{"question":"  ","complexity":"Basic"}`
	g := newGateway(t, m)

	_, err := g.OpeningQuestion(context.Background(), testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingQuestion)
}

func TestRequestNextTurn(t *testing.T) {
	m := newFakeModel()
	m.responses[promptNextTurn] = `{"transcript":"Channels pass values between goroutines.","answerQuality":"Expert","nextQuestion":"How does select work?","nextComplexity":"Expert"}`
	g := newGateway(t, m)

	recent := []models.Turn{
		{ID: 1, Question: "q1", Transcript: "a1"}, {ID: 2, Question: "q2", Transcript: "a2"},
		{ID: 3, Question: "q3", Transcript: "a3"}, {ID: 4, Question: "q4", Transcript: "a4"},
	}
	out, err := g.RequestNextTurn(context.Background(), testContext(), recent, Question{Text: "What is a channel?", Complexity: models.ComplexityIntermediate}, answer)
	require.NoError(t, err)
	assert.Equal(t, "Channels pass values between goroutines.", out.Transcript)
	assert.Equal(t, models.ComplexityExpert, out.AnswerQuality)
	assert.Equal(t, "How does select work?", out.NextQuestion)
	assert.Equal(t, models.ComplexityExpert, out.NextComplexity)

	instruction := m.calls[0].Parts[0].Text
	assert.NotContains(t, instruction, "Q1 ", "history is cut to the window")
	assert.Contains(t, instruction, "Q4 ")
	last := m.calls[0].Parts[len(m.calls[0].Parts)-1]
	assert.Equal(t, "video/webm", last.MIMEType)
}

func TestRequestNextTurn_EmptyTranscriptBecomesSentinel(t *testing.T) {
	m := newFakeModel()
	m.responses[promptNextTurn] = `{"transcript":"","answerQuality":"bogus","nextQuestion":"Could you repeat?","nextComplexity":"Basic"}`
	g := newGateway(t, m)

	out, err := g.RequestNextTurn(context.Background(), testContext(), nil, Question{Text: "q", Complexity: models.ComplexityBasic}, answer)
	require.NoError(t, err)
	assert.Equal(t, NoAudioTranscript, out.Transcript)
	assert.Equal(t, models.ComplexityBasic, out.AnswerQuality)
}

func TestRequestNextTurn_SpeechCheckOverridesInventedTranscript(t *testing.T) {
	m := newFakeModel()
	m.responses[promptNextTurn] = `{"transcript":"I think it is about scaling.","answerQuality":"Intermediate","nextQuestion":"Why?","nextComplexity":"Basic"}`
	g, err := New(m, fakeSpeech{text: ""}, Config{}, logger.Discard())
	require.NoError(t, err)

	out, err := g.RequestNextTurn(context.Background(), testContext(), nil, Question{Text: "q"}, Media{MIMEType: "audio/webm", Data: []byte("opus")})
	require.NoError(t, err)
	assert.Equal(t, NoAudioTranscript, out.Transcript)
}

func TestRequestNextTurn_MissingNextQuestion(t *testing.T) {
	m := newFakeModel()
	m.responses[promptNextTurn] = `{"transcript":"something","answerQuality":"Basic","nextQuestion":"","nextComplexity":"Basic"}`
	g := newGateway(t, m)

	_, err := g.RequestNextTurn(context.Background(), testContext(), nil, Question{Text: "q"}, answer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingQuestion)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

func TestRequestNextTurn_FatalProviderError(t *testing.T) {
	m := newFakeModel()
	m.errs[promptNextTurn] = &llm.ProviderError{Provider: "fake", Code: llm.ErrCodeAPIKey, Message: "denied"}
	g := newGateway(t, m)

	_, err := g.RequestNextTurn(context.Background(), testContext(), nil, Question{Text: "q"}, answer)
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))
}

func TestRequestDeepAnalysis_SentinelShortCircuits(t *testing.T) {
	m := newFakeModel()
	g := newGateway(t, m)

	for _, tr := range []string{NoAudioTranscript, TranscriptUnavailable, "  "} {
		got, err := g.RequestDeepAnalysis(context.Background(), testContext(), DeepAnalysisInput{
			Question: "q", Transcript: tr, Answer: answer, AnswerQuality: models.ComplexityIntermediate,
		})
		require.NoError(t, err)
		assert.Equal(t, models.SkippedMetrics(models.ComplexityIntermediate), got)
	}
	assert.Empty(t, m.calls)
}

func TestRequestDeepAnalysis_WithCode(t *testing.T) {
	m := newFakeModel()
	m.responses[promptCode] = `{"language":"Go","timeComplexity":"O(n)","spaceComplexity":"O(1)","bugs":[],"suggestions":["name things"],"score":140}`
	m.responses[promptDeep] = `{"technicalAccuracy":80,"communicationClarity":70,"relevance":90,"sentiment":"confident","deceptionProbability":-5,"speechPace":"Warp","starMethod":true,"integrity":{"status":"Suspicious","reason":"looked away"},"answerQuality":"Expert"}`
	g := newGateway(t, m)

	got, err := g.RequestDeepAnalysis(context.Background(), testContext(), DeepAnalysisInput{
		Question:   "Reverse a list",
		Transcript: "I would walk the list once.",
		Answer:     answer,
		Frame:      &Media{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}},
		Code:       "func reverse(xs []int) { for i := range xs { _ = i } }",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisComplete, got.Status)
	assert.Equal(t, 80, got.TechnicalAccuracy)
	assert.Equal(t, models.SentimentConfident, got.Sentiment)
	assert.Equal(t, models.PaceNormal, got.SpeechPace)
	assert.Equal(t, 0, got.DeceptionProbability)
	assert.Equal(t, models.IntegritySuspicious, got.Integrity.Status)
	assert.Equal(t, "looked away", got.Integrity.Reason)
	assert.Equal(t, models.ComplexityExpert, got.AnswerQuality)
	require.NotNil(t, got.CodeAnalysis)
	assert.Equal(t, 100, got.CodeAnalysis.Score)
	assert.Equal(t, []string{}, got.DemonstratedSkills)
	assert.Equal(t, 1, m.callCount(promptCode))
}

func TestRequestDeepAnalysis_ShortCodeNotReviewed(t *testing.T) {
	m := newFakeModel()
	m.responses[promptDeep] = `{"technicalAccuracy":50,"communicationClarity":50,"relevance":50,"sentiment":"Neutral","speechPace":"Normal","integrity":{"status":"Clean"},"answerQuality":"Basic"}`
	g := newGateway(t, m)

	got, err := g.RequestDeepAnalysis(context.Background(), testContext(), DeepAnalysisInput{Question: "q", Transcript: "an answer", Code: "x := 1"})
	require.NoError(t, err)
	assert.Nil(t, got.CodeAnalysis)
	assert.Zero(t, m.callCount(promptCode))
}

func TestRequestDeepAnalysis_NoScoresIsError(t *testing.T) {
	m := newFakeModel()
	m.responses[promptDeep] = `{"sentiment":"Neutral"}`
	g := newGateway(t, m)

	_, err := g.RequestDeepAnalysis(context.Background(), testContext(), DeepAnalysisInput{Question: "q", Transcript: "an answer"})
	require.Error(t, err)
}

func silentTurn(id int64) models.Turn {
	return models.Turn{ID: id, Question: "q", Transcript: NoAudioTranscript, Metrics: models.SkippedMetrics(models.ComplexityBasic)}
}

func TestSynthesizeReport_NoValidTurns(t *testing.T) {
	m := newFakeModel()
	g := newGateway(t, m)

	history := []models.Turn{silentTurn(1), {ID: 2, Transcript: "ok"}, {ID: 3, Transcript: TranscriptUnavailable}}
	rep, err := g.SynthesizeReport(context.Background(), testContext(), history)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.OverallScore)
	assert.Empty(t, rep.Turns)
	assert.True(t, rep.NoData)
	assert.Equal(t, models.RecommendationNoHire, rep.Recommendation)
	assert.Empty(t, m.calls)
}

func TestSynthesizeReport_OnlyValidTurnsScored(t *testing.T) {
	m := newFakeModel()
	m.responses[promptReport] = `{"overallScore":78,"categories":{"technicalKnowledge":80,"problemSolving":75,"communication":70,"confidence":72,"cultureFit":74,"adaptability":71},"summary":"Solid.","psychologicalProfile":"Calm.","recommendation":"HIRE"}`
	g := newGateway(t, m)

	valid := models.Turn{ID: 2, Question: "q", Transcript: "A real answer about Go.", AnswerQuality: models.ComplexityIntermediate}
	valid.Metrics = models.AnalysisMetrics{Status: models.AnalysisComplete, TechnicalAccuracy: 80, Integrity: models.Integrity{Status: models.IntegritySuspicious}}
	history := []models.Turn{silentTurn(1), valid, silentTurn(3), silentTurn(4)}

	rep, err := g.SynthesizeReport(context.Background(), testContext(), history)
	require.NoError(t, err)
	require.Len(t, rep.Turns, 1)
	assert.Equal(t, int64(2), rep.Turns[0].ID)
	assert.Equal(t, 78, rep.OverallScore)
	assert.Equal(t, models.RecommendationHire, rep.Recommendation)
	assert.Equal(t, 80, rep.IntegrityScore)
	assert.Equal(t, models.SkillBreakdown{Intermediate: 1}, rep.SkillBreakdown)
	assert.Nil(t, rep.Categories.CodeQuality)
	assert.False(t, rep.Approximate)

	log := m.calls[0].Parts[0].Text
	assert.Contains(t, log, "technical=80")
	assert.NotContains(t, log, NoAudioTranscript)
}

func TestSynthesizeReport_TransientFailureFallsBack(t *testing.T) {
	m := newFakeModel()
	m.errs[promptReport] = &llm.ProviderError{Provider: "fake", Code: llm.ErrCodeServiceDown, Message: "down"}
	g := newGateway(t, m)

	turn := models.Turn{ID: 1, Transcript: "An answer long enough", Code: "func main() {}"}
	turn.Metrics = models.AnalysisMetrics{
		Status: models.AnalysisComplete, TechnicalAccuracy: 90, CommunicationClarity: 60, Relevance: 90,
		CodeAnalysis: &models.CodeAnalysis{Score: 70},
	}
	rep, err := g.SynthesizeReport(context.Background(), testContext(), []models.Turn{turn})
	require.NoError(t, err)
	assert.True(t, rep.Approximate)
	assert.Equal(t, 80, rep.OverallScore)
	assert.Equal(t, models.RecommendationHire, rep.Recommendation)
	require.NotNil(t, rep.Categories.CodeQuality)
	assert.Equal(t, 70, *rep.Categories.CodeQuality)
}

func TestSynthesizeReport_FatalFailurePropagates(t *testing.T) {
	m := newFakeModel()
	m.errs[promptReport] = &llm.ProviderError{Provider: "fake", Code: llm.ErrCodeAPIKey, Message: "denied"}
	g := newGateway(t, m)

	_, err := g.SynthesizeReport(context.Background(), testContext(), []models.Turn{{ID: 1, Transcript: "a valid answer"}})
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
}

func TestSynthesizeReport_NothingAnalyzedIsRetryable(t *testing.T) {
	m := newFakeModel()
	m.errs[promptReport] = &llm.ProviderError{Provider: "fake", Code: llm.ErrCodeServiceDown, Message: "down"}
	g := newGateway(t, m)

	turn := models.Turn{ID: 1, Transcript: "An answer long enough", AnswerQuality: models.ComplexityExpert}
	turn.Metrics = models.FailedMetrics(models.ComplexityExpert, "timed out")
	rep, err := g.SynthesizeReport(context.Background(), testContext(), []models.Turn{turn})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingAnalyzed)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
	assert.False(t, llm.IsFatal(err))
	assert.Zero(t, rep)
}

func TestSynthesizeReport_CancelledContextIsNotApproximated(t *testing.T) {
	m := newFakeModel()
	m.errs[promptReport] = &llm.ProviderError{Provider: "fake", Code: llm.ErrCodeServiceDown, Message: "cancelled", Err: context.Canceled}
	g := newGateway(t, m)

	turn := models.Turn{ID: 1, Transcript: "An answer long enough"}
	turn.Metrics = models.AnalysisMetrics{Status: models.AnalysisComplete, TechnicalAccuracy: 90, CommunicationClarity: 90, Relevance: 90}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := g.SynthesizeReport(ctx, testContext(), []models.Turn{turn})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, rep.Approximate)
	assert.False(t, llm.IsFatal(err))
}

func TestApproximateReport_NeedsAnalyzedTurns(t *testing.T) {
	pending := models.Turn{ID: 1, Transcript: "An answer long enough", Metrics: models.PlaceholderMetrics(models.ComplexityBasic)}
	_, err := ApproximateReport("Ada", []models.Turn{pending})
	assert.ErrorIs(t, err, ErrNothingAnalyzed)

	done := models.Turn{ID: 2, Transcript: "Another answer"}
	done.Metrics = models.AnalysisMetrics{Status: models.AnalysisComplete, TechnicalAccuracy: 60, CommunicationClarity: 60, Relevance: 60}
	rep, err := ApproximateReport("Ada", []models.Turn{pending, done})
	require.NoError(t, err)
	assert.Equal(t, 60, rep.OverallScore)
	assert.Equal(t, models.RecommendationMaybe, rep.Recommendation)
	assert.True(t, rep.Approximate)
}

func TestIntegrityScore_FloorsAtZero(t *testing.T) {
	var turns []models.Turn
	for i := 0; i < 6; i++ {
		tr := models.Turn{}
		tr.Metrics.Integrity.Status = models.IntegritySuspicious
		turns = append(turns, tr)
	}
	assert.Equal(t, 0, IntegrityScore(turns))
	assert.Equal(t, 100, IntegrityScore(nil))
}

func TestRecommendationFor(t *testing.T) {
	assert.Equal(t, models.RecommendationStrongHire, RecommendationFor(90))
	assert.Equal(t, models.RecommendationHire, RecommendationFor(70))
	assert.Equal(t, models.RecommendationMaybe, RecommendationFor(55))
	assert.Equal(t, models.RecommendationNoHire, RecommendationFor(10))
}

func TestDocumentParts_TruncatesText(t *testing.T) {
	g, err := New(newFakeModel(), nil, Config{DocCharBudget: 10}, logger.Discard())
	require.NoError(t, err)

	parts := g.documentParts(labeledDoc{label: "KB", doc: models.Document{Name: "notes.txt", Text: strings.Repeat("x", 50)}})
	require.Len(t, parts, 2)
	assert.Equal(t, "[KB: notes.txt]", parts[0].Text)
	assert.Equal(t, strings.Repeat("x", 10)+"\n[truncated]", parts[1].Text)
}

func TestIsValidTranscript(t *testing.T) {
	assert.False(t, IsValidTranscript("", 3))
	assert.False(t, IsValidTranscript("ok", 3))
	assert.False(t, IsValidTranscript(NoAudioTranscript, 3))
	assert.True(t, IsValidTranscript("yes, I used Go", 3))
}
