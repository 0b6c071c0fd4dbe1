package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"algojudge/internal/judge/model"
	"algojudge/internal/judge/sandbox"
	"algojudge/internal/judge/sandbox/result"
	appErr "algojudge/pkg/errors"
	"algojudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageInternalError is recorded when judging fails for reasons outside the submission.
const MessageInternalError = "Internal judging error"

// TransientSubmission is judged without being stored.
type TransientSubmission struct {
	ProblemID int64  `json:"problem_id"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

// JudgeCommand selects a judging pass. Submit mode names a stored
// submission; dry-run mode judges a transient submission on sample cases.
type JudgeCommand struct {
	SubmissionID string
	DryRun       bool
	Transient    *TransientSubmission
}

// judgeTarget is everything a pass needs once inputs are resolved.
type judgeTarget struct {
	id       string
	language string
	code     string
	problem  model.Problem
	tests    []model.TestCase
}

// Judge runs one judging pass and returns its structured result.
func (s *Service) Judge(ctx context.Context, cmd JudgeCommand) (model.JudgingResult, error) {
	id, err := s.commandID(cmd)
	if err != nil {
		return model.JudgingResult{}, err
	}
	ctx = logger.WithSubmission(ctx, id)
	passCtx, release, err := s.register(ctx, id, cmd.DryRun)
	if err != nil {
		return model.JudgingResult{}, err
	}
	defer release()

	if err := s.acquireSlot(passCtx); err != nil {
		return model.JudgingResult{}, err
	}
	defer s.releaseSlot()
	s.metrics.AddInFlight(1)
	defer s.metrics.AddInFlight(-1)

	started := time.Now()
	res, err := s.judgeGuarded(passCtx, id, cmd)
	s.metrics.ObserveJudge(ctx, res.lang, string(res.Status), string(res.State), time.Since(started))
	return res.JudgingResult, err
}

func (s *Service) commandID(cmd JudgeCommand) (string, error) {
	if cmd.DryRun {
		if cmd.Transient == nil {
			return "", appErr.ValidationError("submission", "required for a dry run")
		}
		return "run-" + uuid.NewString(), nil
	}
	if cmd.SubmissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	return cmd.SubmissionID, nil
}

// outcome pairs the caller-facing result with the language judged.
type outcome struct {
	model.JudgingResult
	lang string
}

// judgeGuarded is the failure boundary: an error or panic past input
// resolution becomes a recorded RE so no submission stays Pending.
func (s *Service) judgeGuarded(ctx context.Context, id string, cmd JudgeCommand) (out outcome, err error) {
	var target judgeTarget
	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "judging panicked",
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())),
			)
			out, err = s.internalFailure(ctx, cmd, target, fmt.Errorf("panic: %v", p))
		}
	}()

	target, err = s.resolve(ctx, id, cmd)
	if err != nil {
		switch {
		case cmd.DryRun || target.id == "" || ctx.Err() != nil:
			return outcome{lang: target.language}, err
		case isSubmissionFault(err):
			return s.rejected(ctx, target, err)
		default:
			return s.internalFailure(ctx, cmd, target, err)
		}
	}

	if !cmd.DryRun {
		s.markState(ctx, id, model.StatePending)
	}
	execCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	judged, err := s.executor.Execute(execCtx, s.judgeRequest(target, cmd.DryRun))
	if err != nil {
		switch {
		case ctx.Err() != nil || execCtx.Err() != nil:
			judged = cancelledResult(target)
		case isSubmissionFault(err) && cmd.DryRun:
			return outcome{lang: target.language}, err
		case isSubmissionFault(err):
			return s.rejected(ctx, target, err)
		default:
			return s.internalFailure(ctx, cmd, target, err)
		}
	}

	res := toJudgingResult(judged, cmd.DryRun)
	out = outcome{JudgingResult: res, lang: target.language}
	if cmd.DryRun {
		res.SubmissionID = ""
		out.JudgingResult = res
		return out, nil
	}
	if res.State == model.StateCancelled {
		s.markState(ctx, id, model.StateCancelled)
		s.publishFinal(ctx, statusFromResult(res, target.language))
		return out, nil
	}
	if err := s.persist(ctx, res, target.language); err != nil {
		logger.Error(ctx, "persist judging result failed", zap.Error(err))
		return out, err
	}
	s.publishFinal(ctx, statusFromResult(res, target.language))
	return out, nil
}

func (s *Service) resolve(ctx context.Context, id string, cmd JudgeCommand) (judgeTarget, error) {
	target := judgeTarget{id: id}
	var problemID int64
	if cmd.DryRun {
		target.language = cmd.Transient.Language
		target.code = cmd.Transient.Code
		problemID = cmd.Transient.ProblemID
		if strings.TrimSpace(target.code) == "" {
			return target, appErr.New(appErr.CodeEmpty)
		}
	} else {
		sub, err := s.repo.GetSubmission(ctx, id)
		if err != nil {
			// Nothing to record against a submission that cannot be loaded.
			return judgeTarget{}, err
		}
		target.language = sub.Language
		problemID = sub.ProblemID
		target.code, err = s.loadSource(ctx, sub)
		if err != nil {
			return target, err
		}
	}
	if len(target.code) > s.maxSource {
		return target, appErr.Newf(appErr.CodeTooLarge, "code is %d bytes, limit is %d", len(target.code), s.maxSource)
	}

	problem, err := s.repo.GetProblem(ctx, problemID)
	if err != nil {
		return target, err
	}
	target.problem = problem
	tests, err := s.repo.GetTestCases(ctx, problemID)
	if err != nil {
		return target, err
	}
	if cmd.DryRun {
		tests = samplesOnly(tests)
	}
	target.tests = tests
	return target, nil
}

func (s *Service) judgeRequest(target judgeTarget, dryRun bool) sandbox.JudgeRequest {
	tests := make([]sandbox.TestcaseSpec, 0, len(target.tests))
	for _, tc := range target.tests {
		tests = append(tests, sandbox.TestcaseSpec{
			TestCaseID: tc.ID,
			Order:      tc.Order,
			IsSample:   tc.IsSample,
			Input:      tc.InputData,
			Expected:   tc.ExpectedOutput,
		})
	}
	return sandbox.JudgeRequest{
		SubmissionID:  target.id,
		Language:      target.language,
		Code:          target.code,
		TimeLimitMs:   target.problem.TimeLimitMs,
		MemoryLimitMB: target.problem.MemoryLimitMB,
		Tests:         tests,
		WorkRoot:      s.workRoot,
		ReceivedAt:    time.Now().Unix(),
	}
}

// rejected records a submission that cannot be judged as it stands, for
// example an unsupported language or oversized code, and returns the cause.
func (s *Service) rejected(ctx context.Context, target judgeTarget, cause error) (outcome, error) {
	res := model.JudgingResult{
		SubmissionID:   target.id,
		State:          model.StateCompleted,
		Status:         model.VerdictRE,
		TotalTestCases: len(target.tests),
		ErrorMessage:   appErr.GetError(cause).Error(),
		Cases:          []model.CaseDetail{},
	}
	if err := s.persist(ctx, res, target.language); err != nil {
		logger.Warn(ctx, "persist rejected submission failed", zap.Error(err))
	}
	s.publishFinal(ctx, statusFromResult(res, target.language))
	return outcome{JudgingResult: res, lang: target.language}, cause
}

// internalFailure converts an unexpected error into an RE verdict.
func (s *Service) internalFailure(ctx context.Context, cmd JudgeCommand, target judgeTarget, cause error) (outcome, error) {
	logger.Error(ctx, "judging failed", zap.Error(cause), zap.Int("code", int(appErr.GetCode(cause))))
	res := model.JudgingResult{
		SubmissionID:   target.id,
		State:          model.StateCompleted,
		Status:         model.VerdictRE,
		TotalTestCases: len(target.tests),
		ErrorMessage:   MessageInternalError,
		DryRun:         cmd.DryRun,
		Cases:          []model.CaseDetail{},
	}
	out := outcome{JudgingResult: res, lang: target.language}
	if cmd.DryRun {
		out.SubmissionID = ""
		return out, nil
	}
	if target.id == "" {
		return out, cause
	}
	if err := s.persist(ctx, res, target.language); err != nil {
		logger.Error(ctx, "persist internal failure failed", zap.Error(err))
	}
	s.publishFinal(ctx, statusFromResult(res, target.language))
	return out, nil
}

// persist writes the outcome to the database and the final status to the cache.
func (s *Service) persist(ctx context.Context, res model.JudgingResult, language string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.SaveSubmissionResult(storeCtx, model.OutcomeFromResult(res)); err != nil {
		return err
	}
	s.saveStatus(storeCtx, statusFromResult(res, language))
	return nil
}

func (s *Service) markState(ctx context.Context, id string, state model.JudgeState) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.MarkJudgeState(storeCtx, id, state); err != nil {
		logger.Warn(ctx, "mark judge state failed", zap.String("state", string(state)), zap.Error(err))
	}
}

func samplesOnly(tests []model.TestCase) []model.TestCase {
	out := make([]model.TestCase, 0, len(tests))
	for _, tc := range tests {
		if tc.IsSample {
			out = append(out, tc)
		}
	}
	return out
}

// isSubmissionFault reports errors caused by the submission itself.
func isSubmissionFault(err error) bool {
	switch appErr.GetCode(err) {
	case appErr.LanguageNotSupported, appErr.CodeTooLarge, appErr.CodeEmpty:
		return true
	}
	return false
}

func cancelledResult(target judgeTarget) result.JudgeResult {
	return result.JudgeResult{
		SubmissionID: target.id,
		Language:     target.language,
		State:        model.StateCancelled,
		Total:        len(target.tests),
		ErrorMessage: sandbox.MessageCancelled,
		FinishedAt:   time.Now().Unix(),
	}
}
