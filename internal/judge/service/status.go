package service

import (
	"context"
	"time"

	"algojudge/internal/judge/model"
	"algojudge/internal/judge/sandbox"
	appErr "algojudge/pkg/errors"
	"algojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// ReportStatus stores intermediate status published by the worker.
// Transient passes are not recorded.
func (s *Service) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	if s.isTransient(update.SubmissionID) {
		return nil
	}
	status := model.JudgeStatus{
		SubmissionID: update.SubmissionID,
		State:        update.State,
		Status:       update.Verdict,
		Language:     update.Language,
		Progress: model.Progress{
			TotalTests: update.TotalTests,
			DoneTests:  update.DoneTests,
		},
		Passed:       update.Passed,
		ErrorMessage: update.ErrorMessage,
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.saveStatus(storeCtx, status)
}

// Status returns the live status document of a submission.
func (s *Service) Status(ctx context.Context, submissionID string) (model.JudgeStatus, error) {
	if s.status == nil {
		return model.JudgeStatus{}, appErr.New(appErr.ServiceUnavailable).WithMessage("status store is not configured")
	}
	return s.status.Get(ctx, submissionID)
}

func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatus) error {
	if s.status == nil {
		return nil
	}
	if status.UpdatedAt == 0 {
		status.UpdatedAt = time.Now().Unix()
	}
	if err := s.status.Save(ctx, status); err != nil {
		logger.Warn(ctx, "update judge status failed",
			zap.String("state", string(status.State)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) publishFinal(ctx context.Context, status model.JudgeStatus) {
	if s.publisher == nil {
		return
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.publisher.PublishFinalStatus(storeCtx, status); err != nil {
		logger.Warn(ctx, "publish final status failed", zap.Error(err))
	}
}

func statusFromResult(res model.JudgingResult, language string) model.JudgeStatus {
	return model.JudgeStatus{
		SubmissionID: res.SubmissionID,
		State:        res.State,
		Status:       res.Status,
		Language:     language,
		Progress: model.Progress{
			TotalTests: res.TotalTestCases,
			DoneTests:  len(res.Cases),
		},
		Passed:       res.TestCasesPassed,
		ErrorMessage: res.ErrorMessage,
		UpdatedAt:    time.Now().Unix(),
	}
}
