package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
)

type Deps struct {
	Interview *handlers.InterviewHandler
	Export    *handlers.ExportHandler
	WS        *handlers.WSHandler
	History   *handlers.HistoryHandler
	Auth      middleware.JWTConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.GET("/me", d.History.Me)
	auth.GET("/history", d.History.List)
	auth.GET("/history/:session_id", d.History.Session)

	iv := auth.Group("/interviews")
	iv.POST("", d.Interview.Start)
	iv.GET("/:session_id", d.Interview.Get)
	iv.DELETE("/:session_id", d.Interview.Close)
	iv.POST("/:session_id/answers", d.Interview.SubmitAnswer)
	iv.POST("/:session_id/finish", d.Interview.Finish)
	iv.GET("/:session_id/report", d.Interview.Report)

	iv.GET("/:session_id/export/report.md", d.Export.ReportMarkdown)
	iv.GET("/:session_id/export/session.json", d.Export.SessionJSON)
	iv.GET("/:session_id/export/archive.zip", d.Export.Archive)

	// WebSocket
	if d.WS != nil {
		auth.GET("/ws/interviews/:session_id", d.WS.SessionWS)
	}
}
