package gateway

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/providers/stt"
	"github.com/yoockh/yoointerview/internal/utils"
)

// Transcript sentinels. A turn carrying one of these is never analyzed or scored.
const (
	NoAudioTranscript     = "(No audible response detected)"
	TranscriptUnavailable = "(Transcription unavailable)"
)

const (
	DefaultHistoryWindow      = 3
	DefaultDocCharBudget      = 30000
	DefaultCodeMinChars       = 20
	DefaultMinTranscriptChars = 3
)

type Config struct {
	HistoryWindow      int
	DocCharBudget      int
	CodeMinChars       int
	MinTranscriptChars int
	// SpeechLanguage is passed to the optional silence check.
	SpeechLanguage string
}

func (c Config) withDefaults() Config {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.DocCharBudget <= 0 {
		c.DocCharBudget = DefaultDocCharBudget
	}
	if c.CodeMinChars <= 0 {
		c.CodeMinChars = DefaultCodeMinChars
	}
	if c.MinTranscriptChars <= 0 {
		c.MinTranscriptChars = DefaultMinTranscriptChars
	}
	if c.SpeechLanguage == "" {
		c.SpeechLanguage = "en-US"
	}
	return c
}

// Media is a decoded payload attached to a request.
type Media struct {
	MIMEType string
	Data     []byte
}

func (m *Media) empty() bool { return m == nil || len(m.Data) == 0 }

// Gateway is the contract boundary to the remote model.
type Gateway struct {
	model   llm.Provider
	speech  stt.Provider // optional
	prompts promptSet
	cfg     Config
	log     *logrus.Logger
}

// New builds a gateway. speech may be nil, which disables the silence cross-check.
func New(model llm.Provider, speech stt.Provider, cfg Config, log *logrus.Logger) (*Gateway, error) {
	const op = "Gateway.New"
	if model == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "model provider is required", nil)
	}
	prompts, err := loadPrompts()
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load prompts", err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Gateway{model: model, speech: speech, prompts: prompts, cfg: cfg.withDefaults(), log: log}, nil
}

func (g *Gateway) Config() Config { return g.cfg }

// IsSentinel reports whether transcript is a silence or failure marker.
func IsSentinel(transcript string) bool {
	t := strings.TrimSpace(transcript)
	return t == NoAudioTranscript || t == TranscriptUnavailable
}

// IsValidTranscript is the report-eligibility filter for a single transcript.
func IsValidTranscript(transcript string, minChars int) bool {
	t := strings.TrimSpace(transcript)
	if t == "" || IsSentinel(t) {
		return false
	}
	return utf8.RuneCountInString(t) >= minChars
}

// normalizeTranscript maps empty output and paraphrased silence markers onto the sentinel.
func normalizeTranscript(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return NoAudioTranscript
	}
	bare := strings.ToLower(strings.Trim(t, "()[].! "))
	if bare == "no audible response detected" || bare == "no audible response" || bare == "silence" {
		return NoAudioTranscript
	}
	return t
}

func parseComplexity(s string) (models.Complexity, bool) {
	for _, c := range complexities {
		if strings.EqualFold(strings.TrimSpace(s), c) {
			return models.Complexity(c), true
		}
	}
	return "", false
}

func truncate(s string, budget int) string {
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	r := []rune(s)
	return string(r[:budget]) + "\n[truncated]"
}

// documentParts renders each non-empty document as a label followed by either its inline
// binary or its text cut to the per-document budget.
func (g *Gateway) documentParts(docs ...labeledDoc) []llm.Part {
	var parts []llm.Part
	for _, d := range docs {
		if d.doc.IsEmpty() {
			continue
		}
		parts = append(parts, llm.Text(fmt.Sprintf("[%s: %s]", d.label, d.doc.Name)))
		if d.doc.IsBinary() {
			parts = append(parts, llm.Blob(d.doc.MIMEType, d.doc.Data))
			continue
		}
		parts = append(parts, llm.Text(truncate(d.doc.Text, g.cfg.DocCharBudget)))
	}
	return parts
}

type labeledDoc struct {
	label string
	doc   models.Document
}

func contextDocs(ic models.InterviewContext, withKnowledge bool) []labeledDoc {
	docs := []labeledDoc{
		{label: "JOB DESCRIPTION", doc: ic.JobDescription},
		{label: "RESUME", doc: ic.Resume},
	}
	if withKnowledge {
		for _, kb := range ic.KnowledgeBase {
			docs = append(docs, labeledDoc{label: "KNOWLEDGE BASE", doc: kb})
		}
	}
	return docs
}

// wrap turns a provider failure into an AppError, keeping the provider error reachable.
func wrap(op, msg string, err error) error {
	code := utils.CodeUnavailable
	switch llm.CodeOf(err) {
	case llm.ErrCodeAPIKey:
		code = utils.CodeUnauthorized
	case llm.ErrCodeTimeout:
		code = utils.CodeTimeout
	}
	return utils.E(code, op, msg, err)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func candidateName(ic models.InterviewContext) string {
	if n := strings.TrimSpace(ic.CandidateName); n != "" {
		return n
	}
	return "Candidate"
}
