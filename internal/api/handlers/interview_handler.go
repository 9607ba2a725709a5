package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/capture"
	"github.com/yoockh/yoointerview/internal/gateway"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/orchestrator"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
)

const maxKnowledgeDocs = 10

type InterviewHandler struct {
	svc        services.InterviewService
	frameWidth int
}

func NewInterviewHandler(svc services.InterviewService, frameWidth int) *InterviewHandler {
	if frameWidth <= 0 {
		frameWidth = capture.DefaultMaxFrameWidth
	}
	return &InterviewHandler{svc: svc, frameWidth: frameWidth}
}

type documentSummary struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Binary   bool   `json:"binary"`
}

type StartInterviewResponse struct {
	SessionID string           `json:"session_id"`
	Question  gateway.Question `json:"question"`
	StartedAt string           `json:"started_at"`
}

type InterviewResponse struct {
	orchestrator.State
	OwnerID        string            `json:"owner_id"`
	StartedAt      string            `json:"started_at"`
	FinishedAt     string            `json:"finished_at,omitempty"`
	JobDescription documentSummary   `json:"job_description"`
	Resume         documentSummary   `json:"resume"`
	KnowledgeBase  []documentSummary `json:"knowledge_base"`
}

func summarize(d models.Document) documentSummary {
	return documentSummary{Name: d.Name, MIMEType: d.MIMEType, Binary: d.IsBinary()}
}

// Start expects multipart fields candidate_name, job_description, resume and any number
// of knowledge files. Document fields may be sent as text in <field>_text instead.
func (h *InterviewHandler) Start(c *gin.Context) {
	const op = "InterviewHandler.Start"

	id, ok := identity(c)
	if !ok {
		return
	}

	name := strings.TrimSpace(c.PostForm("candidate_name"))
	if name == "" {
		name = id.DisplayName
	}

	jd, err := formDocument(c, "job_description")
	if err != nil {
		writeError(c, err)
		return
	}
	resume, err := formDocument(c, "resume")
	if err != nil {
		writeError(c, err)
		return
	}

	var kb []models.Document
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files := form.File["knowledge"]
		if len(files) > maxKnowledgeDocs {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "too many knowledge files (max 10)", nil))
			return
		}
		for _, fh := range files {
			d, err := fileDocument(fh)
			if err != nil {
				writeError(c, err)
				return
			}
			kb = append(kb, d)
		}
	}

	sess, q, err := h.svc.Start(c.Request.Context(), id.UserID, services.StartInput{
		CandidateName:  name,
		JobDescription: jd,
		Resume:         resume,
		KnowledgeBase:  kb,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartInterviewResponse{
		SessionID: sess.ID,
		Question:  q,
		StartedAt: sess.StartedAt.Format(time.RFC3339),
	})
}

func (h *InterviewHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.Get(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	ic := sess.Orchestrator.Context()
	resp := InterviewResponse{
		State:          sess.Orchestrator.Snapshot(),
		OwnerID:        sess.OwnerID,
		StartedAt:      sess.StartedAt.Format(time.RFC3339),
		JobDescription: summarize(ic.JobDescription),
		Resume:         summarize(ic.Resume),
		KnowledgeBase:  make([]documentSummary, 0, len(ic.KnowledgeBase)),
	}
	if fin := sess.FinishedAt(); !fin.IsZero() {
		resp.FinishedAt = fin.Format(time.RFC3339)
	}
	for _, d := range ic.KnowledgeBase {
		resp.KnowledgeBase = append(resp.KnowledgeBase, summarize(d))
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitAnswer expects a multipart media file plus optional frame, code, notes and
// media_type (overrides the part's content type).
func (h *InterviewHandler) SubmitAnswer(c *gin.Context) {
	const op = "InterviewHandler.SubmitAnswer"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("media")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'media'", err))
		return
	}
	data, mime, err := readUpload(fh, MaxAnswerBytes)
	if err != nil {
		writeError(c, err)
		return
	}
	if mt := strings.TrimSpace(c.PostForm("media_type")); mt != "" {
		mime = mt
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = "video/webm"
	}

	answer := orchestrator.Answer{
		Media: gateway.Media{MIMEType: mime, Data: data},
		Code:  c.PostForm("code"),
		Notes: strings.TrimSpace(c.PostForm("notes")),
	}

	if ffh, err := c.FormFile("frame"); err == nil {
		raw, _, err := readUpload(ffh, MaxAnswerBytes)
		if err != nil {
			writeError(c, err)
			return
		}
		frame, err := frameMedia(raw, h.frameWidth)
		if err != nil {
			writeError(c, err)
			return
		}
		answer.Frame = frame
	}

	res, err := h.svc.SubmitAnswer(c.Request.Context(), userID, c.Param("session_id"), answer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *InterviewHandler) Finish(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rep, err := h.svc.Finish(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *InterviewHandler) Report(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rep, err := h.svc.Report(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *InterviewHandler) Close(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Close(c.Request.Context(), userID, c.Param("session_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
