package controller

import (
	"context"
	"strconv"
	"strings"

	"algojudge/internal/judge/model"
	"algojudge/internal/judge/service"
	appErr "algojudge/pkg/errors"
	"algojudge/pkg/utils/logger"
	"algojudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JudgeService is what the HTTP layer needs from the judge service.
type JudgeService interface {
	Judge(ctx context.Context, cmd service.JudgeCommand) (model.JudgingResult, error)
	Execute(ctx context.Context, req service.ExecuteRequest) (service.ExecuteResult, error)
	Status(ctx context.Context, submissionID string) (model.JudgeStatus, error)
	Cancel(ctx context.Context, submissionID string) error
	Running(submissionID string) bool
}

// JudgeController handles judge requests.
type JudgeController struct {
	svc   JudgeService
	watch WatchConfig
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc JudgeService, watch WatchConfig) *JudgeController {
	watch.applyDefaults()
	return &JudgeController{svc: svc, watch: watch}
}

// RunRequest is the body of a dry run.
type RunRequest struct {
	ProblemID int64  `json:"problem_id" binding:"required"`
	Language  string `json:"language" binding:"required"`
	Code      string `json:"code"`
}

// JudgeSubmission runs a submit-mode pass. With ?async=true the pass
// continues in the background and the call returns 202.
func (h *JudgeController) JudgeSubmission(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	async, _ := strconv.ParseBool(c.Query("async"))
	if !async {
		res, err := h.svc.Judge(c.Request.Context(), service.JudgeCommand{SubmissionID: submissionID})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, res)
		return
	}

	if h.svc.Running(submissionID) {
		response.Error(c, appErr.Newf(appErr.JudgeInProgress, "submission %s is already being judged", submissionID))
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := h.svc.Judge(ctx, service.JudgeCommand{SubmissionID: submissionID}); err != nil {
			logger.Warn(ctx, "async judge failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}()
	response.Accepted(c, gin.H{"submission_id": submissionID, "state": model.StatePending})
}

// Run judges transient code against the problem's sample cases.
func (h *JudgeController) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.Judge(c.Request.Context(), service.JudgeCommand{
		DryRun: true,
		Transient: &service.TransientSubmission{
			ProblemID: req.ProblemID,
			Language:  req.Language,
			Code:      req.Code,
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Execute runs code on custom input.
func (h *JudgeController) Execute(c *gin.Context) {
	var req service.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.Execute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.svc.Status(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Cancel stops the pass in flight for a submission.
func (h *JudgeController) Cancel(c *gin.Context) {
	submissionID := c.Param("id")
	if err := h.svc.Cancel(c.Request.Context(), submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"submission_id": submissionID, "cancelled": true})
}
