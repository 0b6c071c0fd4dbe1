package service

import (
	"context"
	"encoding/json"

	"algojudge/internal/common/mq"
	"algojudge/internal/judge/model"
	appErr "algojudge/pkg/errors"
	"algojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// HandleMessage processes a judge task message. Returning an error asks the
// consumer to redeliver, so only transient failures are reported.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return nil
	}
	var task model.JudgeTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		logger.Warn(ctx, "drop malformed judge task", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if task.SubmissionID == "" {
		logger.Warn(ctx, "drop judge task without submission id", zap.String("message_id", msg.ID))
		return nil
	}
	res, err := s.Judge(ctx, JudgeCommand{SubmissionID: task.SubmissionID})
	if err != nil {
		switch appErr.GetCode(err) {
		case appErr.JudgeQueueFull, appErr.DatabaseError, appErr.StorageError:
			return err
		case appErr.JudgeInProgress:
			logger.Info(ctx, "judge task already in flight", zap.String("submission_id", task.SubmissionID))
			return nil
		default:
			logger.Warn(ctx, "judge task rejected", zap.String("submission_id", task.SubmissionID), zap.Error(err))
			return nil
		}
	}
	logger.Info(ctx, "judge task done",
		zap.String("submission_id", task.SubmissionID),
		zap.String("verdict", string(res.Status)),
		zap.String("state", string(res.State)),
	)
	return nil
}
