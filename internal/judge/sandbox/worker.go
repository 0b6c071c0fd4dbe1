package sandbox

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"algojudge/internal/judge/model"
	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/sandbox/runner"
	"algojudge/internal/judge/sandbox/toolchain"
	"algojudge/internal/judge/sandbox/workspace"
	appErr "algojudge/pkg/errors"
	"algojudge/pkg/utils/logger"
)

// Messages of whole-pass outcomes.
const (
	MessageNoTestCases = "No test cases available"
	MessageCancelled   = "Judging was cancelled"
)

// Worker is the sandbox scheduling unit. It keeps no per-judging state, so
// one Worker serves concurrent passes for different submissions.
type Worker struct {
	runner         runner.Runner
	languages      *toolchain.Registry
	statusReporter StatusReporter
}

// NewWorker creates a new worker with required dependencies.
func NewWorker(runner runner.Runner, languages *toolchain.Registry) *Worker {
	return &Worker{runner: runner, languages: languages}
}

// SetStatusReporter injects a status reporter for intermediate updates.
func (w *Worker) SetStatusReporter(reporter StatusReporter) {
	w.statusReporter = reporter
}

// Execute runs a full judge workflow for one submission.
func (w *Worker) Execute(ctx context.Context, req JudgeRequest) (result.JudgeResult, error) {
	if err := validateJudgeRequest(req); err != nil {
		return result.JudgeResult{}, err
	}
	if w.runner == nil || w.languages == nil {
		return result.JudgeResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("worker dependencies are not initialized")
	}
	lang, err := w.languages.Lookup(req.Language)
	if err != nil {
		return result.JudgeResult{}, err
	}
	if req.ReceivedAt == 0 {
		req.ReceivedAt = time.Now().Unix()
	}

	res := result.JudgeResult{
		SubmissionID: req.SubmissionID,
		Language:     lang.ID,
		State:        model.StatePending,
		Total:        len(req.Tests),
		ReceivedAt:   req.ReceivedAt,
	}
	w.report(ctx, req, res, 0)

	if len(req.Tests) == 0 {
		res.Verdict = model.VerdictCE
		res.ErrorMessage = MessageNoTestCases
		return w.finish(ctx, req, res), nil
	}

	layout, err := workspace.New(req.WorkRoot, req.SubmissionID)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := layout.Cleanup(); err != nil {
			logger.Warn(ctx, "remove submission workspace failed", zap.String("dir", layout.RootDir), zap.Error(err))
		}
	}()

	res.State = model.StateCompiling
	w.report(ctx, req, res, 0)

	artifact, err := toolchain.Prepare(lang, layout.CompileDir, req.Code)
	if err != nil {
		if appErr.Is(err, appErr.CompilationError) {
			res.Verdict = model.VerdictCE
			res.Compile = &result.CompileResult{Error: err.Error()}
			res.ErrorMessage = err.Error()
			return w.finish(ctx, req, res), nil
		}
		return res, err
	}

	compileRes, err := w.runner.Compile(ctx, runner.CompileRequest{
		SubmissionID: req.SubmissionID,
		Language:     lang,
		Artifact:     artifact,
	})
	if err != nil {
		if ctx.Err() != nil {
			return w.cancel(ctx, req, res), nil
		}
		return res, err
	}
	if lang.CompileEnabled {
		res.Compile = &compileRes
	}
	if !compileRes.OK {
		res.Verdict = model.VerdictCE
		res.ErrorMessage = compileRes.Error
		return w.finish(ctx, req, res), nil
	}

	res.State = model.StateRunning
	w.report(ctx, req, res, 0)

	tests := orderedTests(req.Tests)
	res.Tests = make([]result.TestcaseResult, 0, len(tests))
	memoryBytes := req.MemoryLimitMB << 20
	for i, tc := range tests {
		if ctx.Err() != nil {
			return w.cancel(ctx, req, res), nil
		}
		testID := strconv.Itoa(i + 1)
		testDir, err := layout.TestDir(testID)
		if err != nil {
			return res, err
		}
		caseRes, err := w.runner.Run(ctx, runner.RunRequest{
			SubmissionID: req.SubmissionID,
			TestID:       testID,
			TestCaseID:   tc.TestCaseID,
			Order:        tc.Order,
			IsSample:     tc.IsSample,
			Language:     lang,
			Artifact:     artifact,
			WorkDir:      testDir,
			Input:        tc.Input,
			Expected:     tc.Expected,
			SkipCompare:  req.SkipCompare,
			TimeLimitMs:  req.TimeLimitMs,
			MemoryBytes:  memoryBytes,
		})
		if err != nil {
			if ctx.Err() != nil {
				return w.cancel(ctx, req, res), nil
			}
			return res, err
		}

		res.Tests = append(res.Tests, caseRes)
		if caseRes.Verdict == model.VerdictAC {
			res.Passed++
		}
		w.report(ctx, req, res, len(res.Tests))
		if caseRes.Verdict.Fatal() {
			break
		}
	}

	aggregate(&res)
	return w.finish(ctx, req, res), nil
}

// orderedTests sorts a copy by Order; equal orders keep their input order.
func orderedTests(tests []TestcaseSpec) []TestcaseSpec {
	sorted := make([]TestcaseSpec, len(tests))
	copy(sorted, tests)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// aggregate derives the final verdict and usage summary from executed cases.
func aggregate(res *result.JudgeResult) {
	var timeSum, timeCount, memSum, memCount int64
	var fatal model.Verdict
	allAC := len(res.Tests) > 0
	for _, tc := range res.Tests {
		if tc.WallTimeMs > 0 {
			timeSum += tc.WallTimeMs
			timeCount++
		}
		if tc.MemoryKB > 0 {
			memSum += tc.MemoryKB
			memCount++
		}
		if tc.Verdict.Fatal() && fatal == "" {
			fatal = tc.Verdict
		}
		if tc.Verdict != model.VerdictAC {
			allAC = false
		}
		if res.ErrorMessage == "" && tc.Message != "" {
			res.ErrorMessage = tc.Message
		}
	}
	if timeCount > 0 {
		res.ExecutionTimeSec = float64(timeSum) / float64(timeCount) / 1000
	}
	if memCount > 0 {
		res.MemoryKB = memSum / memCount
	}
	switch {
	case fatal != "":
		res.Verdict = fatal
	case allAC:
		res.Verdict = model.VerdictAC
	default:
		res.Verdict = model.VerdictWA
	}
}

func (w *Worker) finish(ctx context.Context, req JudgeRequest, res result.JudgeResult) result.JudgeResult {
	res.State = model.StateCompleted
	res.FinishedAt = time.Now().Unix()
	w.report(ctx, req, res, len(res.Tests))
	logger.Info(ctx, "judging finished",
		zap.String("submission_id", req.SubmissionID),
		zap.String("verdict", string(res.Verdict)),
		zap.Int("passed", res.Passed),
		zap.Int("total", res.Total),
	)
	return res
}

func (w *Worker) cancel(ctx context.Context, req JudgeRequest, res result.JudgeResult) result.JudgeResult {
	res.State = model.StateCancelled
	res.Verdict = ""
	res.ErrorMessage = MessageCancelled
	res.FinishedAt = time.Now().Unix()
	w.report(ctx, req, res, len(res.Tests))
	logger.Info(ctx, "judging cancelled", zap.String("submission_id", req.SubmissionID))
	return res
}

func (w *Worker) report(ctx context.Context, req JudgeRequest, res result.JudgeResult, done int) {
	if w.statusReporter == nil {
		return
	}
	// Status must still land after the judging context is cancelled.
	ctx = context.WithoutCancel(ctx)
	err := w.statusReporter.ReportStatus(ctx, StatusUpdate{
		SubmissionID: req.SubmissionID,
		State:        res.State,
		Verdict:      res.Verdict,
		Language:     res.Language,
		TotalTests:   res.Total,
		DoneTests:    done,
		Passed:       res.Passed,
		ErrorMessage: res.ErrorMessage,
		ReceivedAt:   res.ReceivedAt,
		FinishedAt:   res.FinishedAt,
	})
	if err != nil {
		logger.Warn(ctx, "report judge status failed", zap.String("submission_id", req.SubmissionID), zap.Error(err))
	}
}

func validateJudgeRequest(req JudgeRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.Language == "" {
		return appErr.ValidationError("language", "required")
	}
	if req.WorkRoot == "" {
		return appErr.ValidationError("work_root", "required")
	}
	return nil
}
