package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/export"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
)

type ExportHandler struct {
	svc services.InterviewService
}

func NewExportHandler(svc services.InterviewService) *ExportHandler {
	return &ExportHandler{svc: svc}
}

func (h *ExportHandler) bundle(c *gin.Context) (export.Bundle, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return export.Bundle{}, false
	}
	b, err := h.svc.Bundle(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return export.Bundle{}, false
	}
	return b, true
}

func attach(c *gin.Context, name, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func (h *ExportHandler) ReportMarkdown(c *gin.Context) {
	b, ok := h.bundle(c)
	if !ok {
		return
	}
	attach(c, export.ReportFileName, "text/markdown; charset=utf-8", export.ReportDocument(b))
}

func (h *ExportHandler) SessionJSON(c *gin.Context) {
	b, ok := h.bundle(c)
	if !ok {
		return
	}
	body, err := export.SessionJSON(b)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "ExportHandler.SessionJSON", "failed to encode session", err))
		return
	}
	attach(c, export.SessionFileName, "application/json", body)
}

func (h *ExportHandler) Archive(c *gin.Context) {
	b, ok := h.bundle(c)
	if !ok {
		return
	}
	body, err := export.Archive(b)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "ExportHandler.Archive", "failed to build archive", err))
		return
	}
	attach(c, "interview-"+b.SessionID+".zip", "application/zip", body)
}
