package controller

import (
	"algojudge/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the judge API under /api/v1/judge.
func (h *JudgeController) RegisterRoutes(r gin.IRouter) {
	judge := r.Group("/api/v1/judge")
	judge.POST("/run", h.Run)
	judge.POST("/execute", h.Execute)

	submissions := judge.Group("/submissions/:id", middleware.SubmissionContext("id"))
	submissions.GET("", h.GetStatus)
	submissions.POST("/judge", h.JudgeSubmission)
	submissions.DELETE("", h.Cancel)
	submissions.GET("/watch", h.Watch)
}
