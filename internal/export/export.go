package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
)

// Bundle is everything the exports read. Exports never write back into a session.
type Bundle struct {
	SessionID  string
	OwnerID    string
	Context    models.InterviewContext
	Report     models.Report
	History    []models.Turn
	StartedAt  time.Time
	FinishedAt time.Time
}

const (
	ReportFileName  = "report.md"
	SessionFileName = "session.json"
)

// ReportDocument renders the human-readable report as Markdown.
func ReportDocument(b Bundle) []byte {
	r := b.Report
	var w strings.Builder

	fmt.Fprintf(&w, "# Interview Report: %s\n\n", r.CandidateName)
	fmt.Fprintf(&w, "- Session: `%s`\n", b.SessionID)
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&w, "- Generated: %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&w, "- Overall score: **%d/100**\n", r.OverallScore)
	fmt.Fprintf(&w, "- Recommendation: **%s**\n", r.Recommendation)
	fmt.Fprintf(&w, "- Integrity score: %d/100\n", r.IntegrityScore)
	if r.Approximate {
		w.WriteString("- Note: scores are approximated from per-answer analysis\n")
	}
	w.WriteString("\n")

	if r.NoData {
		w.WriteString("No valid answers were recorded during this interview.\n")
		return []byte(w.String())
	}

	w.WriteString("## Category scores\n\n| Category | Score |\n|---|---|\n")
	c := r.Categories
	for _, row := range []struct {
		name  string
		score int
	}{
		{"Technical knowledge", c.TechnicalKnowledge},
		{"Problem solving", c.ProblemSolving},
		{"Communication", c.Communication},
		{"Confidence", c.Confidence},
		{"Culture fit", c.CultureFit},
		{"Adaptability", c.Adaptability},
	} {
		fmt.Fprintf(&w, "| %s | %d |\n", row.name, row.score)
	}
	if c.CodeQuality != nil {
		fmt.Fprintf(&w, "| Code quality | %d |\n", *c.CodeQuality)
	}

	sb := r.SkillBreakdown
	fmt.Fprintf(&w, "\n## Answer depth\n\n| Basic | Intermediate | Expert |\n|---|---|---|\n| %d | %d | %d |\n", sb.Basic, sb.Intermediate, sb.Expert)

	if r.Summary != "" {
		fmt.Fprintf(&w, "\n## Summary\n\n%s\n", r.Summary)
	}
	if r.PsychologicalProfile != "" {
		fmt.Fprintf(&w, "\n## Psychological profile\n\n%s\n", r.PsychologicalProfile)
	}

	w.WriteString("\n## Turn log\n")
	for _, t := range r.Turns {
		fmt.Fprintf(&w, "\n### Q%d (%s)\n\n%s\n\n", t.ID, t.Complexity, t.Question)
		fmt.Fprintf(&w, "> %s\n\n", strings.ReplaceAll(t.Transcript, "\n", "\n> "))
		m := t.Metrics
		switch m.Status {
		case models.AnalysisComplete:
			fmt.Fprintf(&w, "Accuracy %d, clarity %d, relevance %d. Sentiment %s, pace %s, STAR %s, integrity %s.\n",
				m.TechnicalAccuracy, m.CommunicationClarity, m.Relevance, m.Sentiment, m.SpeechPace, yesNo(m.StarMethod), m.Integrity.Status)
			if m.Integrity.Reason != "" {
				fmt.Fprintf(&w, "Integrity note: %s\n", m.Integrity.Reason)
			}
			if len(m.DemonstratedSkills) > 0 {
				fmt.Fprintf(&w, "Skills: %s\n", strings.Join(m.DemonstratedSkills, ", "))
			}
			if len(m.ImprovementAreas) > 0 {
				fmt.Fprintf(&w, "Improve: %s\n", strings.Join(m.ImprovementAreas, ", "))
			}
		case models.AnalysisFailed:
			w.WriteString("Analysis failed.\n")
		default:
			w.WriteString("Not analyzed.\n")
		}
		if ca := m.CodeAnalysis; ca != nil {
			fmt.Fprintf(&w, "Code (%s): score %d, time %s, space %s\n", ca.Language, ca.Score, ca.TimeComplexity, ca.SpaceComplexity)
		}
		if t.Notes != "" {
			fmt.Fprintf(&w, "Notes: %s\n", t.Notes)
		}
	}
	return []byte(w.String())
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// SessionDump is the machine-readable record of a finished interview.
func SessionDump(b Bundle) models.SessionDump {
	kb := make([]string, 0, len(b.Context.KnowledgeBase))
	for _, d := range b.Context.KnowledgeBase {
		kb = append(kb, d.Name)
	}
	finished := b.FinishedAt
	if finished.IsZero() {
		finished = b.Report.GeneratedAt
	}
	var duration int64
	if !b.StartedAt.IsZero() && finished.After(b.StartedAt) {
		duration = int64(finished.Sub(b.StartedAt).Seconds())
	}
	turns := b.History
	if turns == nil {
		turns = []models.Turn{}
	}
	return models.SessionDump{
		SessionID:       b.SessionID,
		OwnerID:         b.OwnerID,
		CandidateName:   b.Context.CandidateName,
		JobDocument:     b.Context.JobDescription.Name,
		ResumeName:      b.Context.Resume.Name,
		Knowledge:       kb,
		Report:          b.Report,
		Turns:           turns,
		StartedAt:       b.StartedAt,
		FinishedAt:      finished,
		DurationSeconds: duration,
	}
}

func SessionJSON(b Bundle) ([]byte, error) {
	const op = "export.SessionJSON"
	out, err := json.MarshalIndent(SessionDump(b), "", "  ")
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode session", err)
	}
	return out, nil
}

// Archive bundles the report, the session dump and each turn's recording.
func Archive(b Bundle) ([]byte, error) {
	const op = "export.Archive"

	dump, err := SessionJSON(b)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name string
		data []byte
	}{
		{ReportFileName, ReportDocument(b)},
		{SessionFileName, dump},
	}
	for _, t := range b.History {
		if t.AnswerMedia == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(t.AnswerMedia)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, fmt.Sprintf("recording of turn %d is corrupt", t.ID), err)
		}
		files = append(files, struct {
			name string
			data []byte
		}{MediaName(t), raw})
	}

	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: b.Report.GeneratedAt})
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to write archive", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to write archive", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to finish archive", err)
	}
	return buf.Bytes(), nil
}

// MediaName is the archive path of a turn's recording.
func MediaName(t models.Turn) string {
	return fmt.Sprintf("media/turn-%d.%s", t.ID, extension(t.AnswerMIME))
}

func extension(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch base {
	case "video/webm", "audio/webm":
		return "webm"
	case "audio/ogg", "video/ogg":
		return "ogg"
	case "video/mp4", "audio/mp4":
		return "mp4"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg":
		return "mp3"
	default:
		return "bin"
	}
}
