package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/services"
)

type HistoryHandler struct {
	svc services.HistoryService
}

func NewHistoryHandler(svc services.HistoryService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// Me returns the identity the request was authenticated as.
func (h *HistoryHandler) Me(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, id)
}

func (h *HistoryHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.svc.ListReports(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": rows})
}

func (h *HistoryHandler) Session(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	d, err := h.svc.GetSession(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
