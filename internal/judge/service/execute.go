package service

import (
	"context"
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

// ExecuteStatus is the outcome vocabulary of a custom-input run.
type ExecuteStatus string

const (
	ExecuteSuccess          ExecuteStatus = "success"
	ExecuteCompilationError ExecuteStatus = "compilation_error"
	ExecuteRuntimeError     ExecuteStatus = "runtime_error"
	ExecuteTimeLimit        ExecuteStatus = "time_limit"
	ExecuteMemoryLimit      ExecuteStatus = "memory_limit"
	ExecuteOutputLimit      ExecuteStatus = "output_limit"
	ExecuteError            ExecuteStatus = "error"
)

// ExecuteRequest runs code once on the given stdin, without test cases.
type ExecuteRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input"`
}

// ExecuteResult is what a custom-input run produced.
type ExecuteResult struct {
	Status        ExecuteStatus `json:"status"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	ExitCode      int           `json:"exit_code"`
	ExecutionTime float64       `json:"execution_time"`
	MemoryUsed    int64         `json:"memory_used"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// Execute compiles and runs code on custom input under the execute limits.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return ExecuteResult{}, appErr.New(appErr.CodeEmpty)
	}
	if req.Language == "" {
		return ExecuteResult{}, appErr.ValidationError("language", "required")
	}
	if len(req.Code) > s.maxSource {
		return ExecuteResult{}, appErr.Newf(appErr.CodeTooLarge, "code is %d bytes, limit is %d", len(req.Code), s.maxSource)
	}
	if len(req.Input) > s.maxInput {
		return ExecuteResult{}, appErr.Newf(appErr.CustomInputTooLarge, "input is %d bytes, limit is %d", len(req.Input), s.maxInput)
	}

	id := "exec-" + uuid.NewString()
	ctx = logger.WithSubmission(ctx, id)
	passCtx, release, err := s.register(ctx, id, true)
	if err != nil {
		return ExecuteResult{}, err
	}
	defer release()
	if err := s.acquireSlot(passCtx); err != nil {
		return ExecuteResult{}, err
	}
	defer s.releaseSlot()
	s.metrics.AddInFlight(1)
	defer s.metrics.AddInFlight(-1)

	started := time.Now()
	judged, err := s.executor.Execute(passCtx, sandbox.JudgeRequest{
		SubmissionID:  id,
		Language:      req.Language,
		Code:          req.Code,
		TimeLimitMs:   s.execTimeMs,
		MemoryLimitMB: s.execMemMB,
		Tests:         []sandbox.TestcaseSpec{{TestCaseID: 1, Order: 1, Input: req.Input}},
		WorkRoot:      s.workRoot,
		SkipCompare:   true,
		ReceivedAt:    started.Unix(),
	})
	if err != nil {
		if isSubmissionFault(err) {
			return ExecuteResult{}, err
		}
		logger.Error(ctx, "execute failed", zap.Error(err))
		return ExecuteResult{Status: ExecuteError, ErrorMessage: MessageInternalError}, nil
	}
	s.metrics.ObserveJudge(ctx, req.Language, string(judged.Verdict), string(judged.State), time.Since(started))
	return executeResult(judged), nil
}

func executeResult(res result.JudgeResult) ExecuteResult {
	if res.State == model.StateCancelled {
		return ExecuteResult{Status: ExecuteError, ErrorMessage: res.ErrorMessage}
	}
	if res.Verdict == model.VerdictCE && len(res.Tests) == 0 {
		out := ExecuteResult{Status: ExecuteCompilationError, ErrorMessage: res.ErrorMessage}
		if res.Compile != nil {
			out.Stderr = res.Compile.Error
		}
		return out
	}
	if len(res.Tests) == 0 {
		return ExecuteResult{Status: ExecuteError, ErrorMessage: res.ErrorMessage}
	}
	tc := res.Tests[0]
	out := ExecuteResult{
		Stdout:        tc.Stdout,
		Stderr:        tc.Stderr,
		ExitCode:      tc.ExitCode,
		ExecutionTime: float64(tc.WallTimeMs) / 1000,
		MemoryUsed:    tc.MemoryKB,
		ErrorMessage:  tc.Message,
	}
	switch {
	case tc.Verdict == model.VerdictAC:
		out.Status = ExecuteSuccess
	case tc.Verdict == model.VerdictTLE:
		out.Status = ExecuteTimeLimit
	case tc.Verdict == model.VerdictMLE:
		out.Status = ExecuteMemoryLimit
	case tc.FailureKind == model.FailureOutputLimit:
		out.Status = ExecuteOutputLimit
	case tc.Verdict == model.VerdictRE:
		out.Status = ExecuteRuntimeError
	default:
		// A runtime that cannot be found surfaces as CE on the case.
		out.Status = ExecuteError
	}
	return out
}
